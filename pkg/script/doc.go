/*
Package script runs user-authored code against an execution state.

Conditions, function nodes and history filters are written in Lua and run in
a gopher-lua interpreter that only opens the base, table, string and math
libraries. File and module loading (dofile, loadfile, load, loadstring,
require) is removed, and the interpreter is bound to a context so a stopped
run or an expired timeout interrupts a busy script.

Security: scripts still run inside the worker process. They cannot reach the
filesystem, the network or the environment, but a script can consume CPU until
its timeout fires and memory up to what the process allows. Graph documents
must therefore come from trusted authors.

Scripts see the state as a table named state with the fields snapshot,
result, history and exception. Every snapshot entry whose label is a valid Lua
identifier is also bound as a global string, so a condition can read a prior
node's output by its label:

	function main(state)
	    return Classifier == "yes"
	end

A chunk that does not define main is evaluated for its first return value:

	return string.find(state.result, "done") ~= nil
*/
package script
