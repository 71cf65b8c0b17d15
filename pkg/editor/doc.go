/*
Package editor applies structural edits to stored graphs.

Every edit is a serialized load, mutate and save cycle: the Editor takes a
per-graph lock (and, when configured, a distributed lock shared by all
replicas), rebuilds the graph from its document, applies the change and
writes the document back if anything changed. Running jobs keep the
point-in-time copy they loaded.
*/
package editor
