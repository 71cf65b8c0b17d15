/*
Package ports defines the driven ports (interfaces) of the promptflow engine.

These interfaces decouple graph execution and job management from the
storage, queueing and messaging backends that host them.

# Key Interfaces

  - GraphStore: persists graph documents by uid.
  - JobStore: persists job records, their logs and their final state.
  - TaskQueue: runs registered task functions on workers with retries.
  - InputChannel: delivers blocking input to a paused job.
  - DistributedLocker: serializes edits of one graph across replicas.
  - JobService: the operations exposed to HTTP, MCP and CLI adapters.

Contract suites (RunGraphStoreContract, RunJobStoreContract, ...) verify
that an adapter honours the behaviour every caller relies on.
*/
package ports
