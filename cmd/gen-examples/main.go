// Command gen-examples writes the sample graph documents under examples/graphs.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/promptflow/pkg/adapters/file"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/dsl"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
)

// created is fixed so regenerating yields identical files.
var created = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func helloWorld() *dsl.Builder {
	b := dsl.New("hello-world", "Hello World").Created(created)
	b.Start("start").Go("name")
	b.Add("name").Label("Name").Input("What is your name?").Go("greet")
	b.Add("greet").Label("Greeting").Prompt("Hello, {state}!")
	return b
}

func routing() *dsl.Builder {
	b := dsl.New("routing", "Conditional Routing").Created(created)
	b.Start("start").Go("answer")
	b.Add("answer").Label("Answer").Input("Continue? (yes/no)").
		Branch("is_yes.lua", "function main(state)\n    return Answer == \"yes\"\nend\n", "yes").
		Branch("is_no.lua", "function main(state)\n    return Answer ~= \"yes\"\nend\n", "no")
	b.Add("yes").Label("Accepted").Prompt("Great, continuing.")
	b.Add("no").Label("Declined").Prompt("Stopped at {state.snapshot[Answer]}.")
	return b
}

func summarize() *dsl.Builder {
	b := dsl.New("summarize", "Summarize").Created(created)
	b.Start("start").Go("text")
	b.Add("text").Label("Text").Input("Paste the text to summarize").Go("ask")
	b.Add("ask").Label("Instruction").Prompt("Summarize between <summary> tags:\n\n{state.snapshot[Text]}").Go("llm")
	b.Add("llm").Label("LLM").Type(nodes.TypeDummyLLM).
		Set("dummy_string", "<summary>A short summary.</summary>").Go("tag")
	b.Add("tag").Label("Summary").Type(nodes.TypeTag).
		Set("start_tag", "<summary>").
		Set("end_tag", "</summary>")
	return b
}

func main() {
	targetDir := "examples/graphs"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		fail(err)
	}

	reg := nodes.Default(nodes.DefaultServices())
	for _, b := range []*dsl.Builder{helloWorld(), routing(), summarize()} {
		doc, err := b.Build()
		if err != nil {
			fail(err)
		}
		// Reject documents the engine could not load.
		if _, err := graph.FromDocument(doc, reg); err != nil {
			fail(err)
		}
		if err := write(targetDir, doc); err != nil {
			fail(err)
		}
	}
}

func write(dir string, doc *domain.GraphDocument) error {
	path := filepath.Join(dir, doc.UID+".yaml")
	if err := file.WriteDocument(path, doc); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
