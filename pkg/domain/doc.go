/*
Package domain contains the core data model of the promptflow engine.

It defines the values that flow between the graph engine, the job runner and
the persistence adapters. The package is kept free of I/O so every other
package can depend on it.

# Key Entities

  - State: the mutable execution context threaded through a run (snapshot, history, result, data).
  - Job: a durable record of one graph execution attempt, with status and logs.
  - GraphDocument: the serialized form of a graph (nodes and branches).
  - LifecycleHooks: callbacks for observing node execution.
*/
package domain
