/*
Package promptflow executes graphs of prompt, LLM, script and IO nodes.

A graph is a set of nodes joined by connectors. Each node reads the shared
execution state, produces an output and hands control to every successor
whose Lua condition holds. Nodes that need a human answer pause the run
until input arrives, either from a terminal or, for durable jobs, from the
HTTP API, the MCP server or the CLI.

# Concept

The Engine in this package is the in-process entry point: it loads graph
documents (JSON or YAML) with the built-in node catalog and runs them in
the calling goroutine. Durable execution, where runs are queued, persisted
and resumed by workers, lives in pkg/runner together with the store and
queue adapters under pkg/adapters.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"
		"os"

		"github.com/aretw0/promptflow"
	)

	func main() {
		eng := promptflow.New()

		g, err := eng.Load("examples/graphs/hello-world.yaml")
		if err != nil {
			log.Fatal(err)
		}

		st, err := eng.RunText(context.Background(), g, nil, os.Stdin, os.Stdout)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(st.Result)
	}
*/
package promptflow
