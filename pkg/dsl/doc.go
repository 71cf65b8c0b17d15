/*
Package dsl provides a fluent Go builder for promptflow graph documents.

It lets callers define graphs in code instead of hand-written YAML or JSON,
which is handy for generated graphs, fixtures in tests and IDE
autocompletion. The result is a domain.GraphDocument that can be saved by
any GraphStore or turned into a runnable graph with graph.FromDocument.

Example usage:

	b := dsl.New("hello", "Hello")

	b.Start("start").Go("ask_name")

	b.Add("ask_name").
		Label("Name").
		Input("What is your name?").
		Go("greet")

	b.Add("greet").
		Prompt("Nice to meet you, {state}!")

	doc, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}
	g, err := graph.FromDocument(doc, nodes.Default(nodes.DefaultServices()))
*/
package dsl
