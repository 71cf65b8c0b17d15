/*
Package graph implements the promptflow execution engine.

A Graph owns Nodes and the Connectors between them. Each Node wraps a
Behavior, the pluggable unit of work selected by its node type. Running a
graph walks it from the Start node, threading one domain.State through every
node and following the connectors whose conditions hold.

Traversal drains each newly queued branch to completion before the next
sibling connector is considered. For a diamond A->B, A->C, B->D, C->D the
order is A, B, D, C, D, and the snapshot entry of D reflects the C branch.

Failures are split in two. A behavior error becomes the node's textual result
and the run continues. An InfrastructureError (for example a broken input
channel) aborts the run and is returned to the caller.
*/
package graph
