/*
Package nodes is the catalog of node behaviors.

Every behavior embeds a Configurable holding its typed options, which are
decoded from and encoded to the flat option bag of a serialized node with
mapstructure. External handles such as the HTTP client, the OpenAI client
and the clock come from Services. Registry maps serialized node_type names
to constructors and is the graph.Factory used to load documents.
*/
package nodes
