/*
Package runner wraps graph executions in durable jobs.

A JobRunner owns the job lifecycle: it creates the job record, submits a
"run_job" task to the queue, executes the task on a worker and records
every status change, log line and the final state through the job store.
Nodes that need input pause the job in INPUT_REQUIRED until SendInput
publishes a value on the job's input channel.

# Usage

	r := runner.New(graphs, jobs, queue, inputs, nodes.Default(svc),
		runner.WithLogger(logger),
	)
	go queue.Run(ctx)

	jobID, err := r.Submit(ctx, graphUID, nil)

For one-off terminal runs without stores, RunLocal executes a graph in the
calling goroutine with a TextInput reading answers from stdin.
*/
package runner
