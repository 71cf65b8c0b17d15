package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/ports"
	"go.opentelemetry.io/otel/trace"
)

// TaskRunJob is the queue task that executes one job.
const TaskRunJob = "run_job"

// ArgJobID is the task argument carrying the job id.
const ArgJobID = "job_id"

// Deps are the collaborators of a JobRunner. RunLocal only needs Factory.
type Deps struct {
	Graphs  ports.GraphStore
	Jobs    ports.JobStore
	Queue   ports.TaskQueue
	Inputs  ports.InputChannel
	Factory graph.Factory
}

// JobRunner executes stored graphs as durable jobs.
type JobRunner struct {
	Deps

	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	tracer    trace.Tracer
	graphOpts []graph.Option
	maxInput  int

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	graph  *graph.Graph
	cancel context.CancelCauseFunc
}

var _ ports.JobService = (*JobRunner)(nil)

// New creates a runner and, when deps.Queue is set, registers TaskRunJob
// on it.
func New(deps Deps, opts ...Option) *JobRunner {
	r := &JobRunner{
		Deps:   deps,
		logger: logging.NewNop(),
		active: make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Queue != nil {
		r.Queue.Register(TaskRunJob, r.Execute)
	}
	return r
}

// Submit creates a PENDING job for graphID and queues its execution.
func (r *JobRunner) Submit(ctx context.Context, graphID string, metadata map[string]any) (string, error) {
	if _, err := r.Graphs.Load(ctx, graphID); err != nil {
		return "", err
	}
	jobID, err := r.Jobs.Create(ctx, graphID, metadata)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	r.emitStatus(ctx, jobID, domain.JobPending)

	taskID, err := r.Queue.Submit(ctx, TaskRunJob, map[string]string{ArgJobID: jobID})
	if err != nil {
		r.fail(ctx, r.logger.With("job_id", jobID), jobID, nil)
		return "", fmt.Errorf("failed to queue job: %w", err)
	}
	if err := r.Jobs.SetTaskID(ctx, jobID, taskID); err != nil {
		return "", err
	}
	r.logger.Info("job submitted", "job_id", jobID, "graph_uid", graphID, "task_id", taskID)
	return jobID, nil
}

// Execute is the body of the run_job task. A returned error asks the queue
// to retry; the last attempt marks the job FAILED first. Structural
// problems with the stored graph fail the job without retrying.
func (r *JobRunner) Execute(ctx context.Context, task ports.Task) error {
	jobID := task.Args[ArgJobID]
	logger := r.logger.With("job_id", jobID, "task_id", task.ID, "attempt", task.Attempt)

	job, err := r.Jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Warn("dropping task for unknown job")
			return nil
		}
		return err
	}
	if job.Status.Terminal() {
		logger.Info("job already finished", "status", job.Status)
		return nil
	}

	g, err := r.load(ctx, job.GraphID)
	if err != nil {
		if permanent(err) {
			logger.Error("job cannot run", "err", err)
			r.fail(ctx, logger, jobID, nil)
			return nil
		}
		return r.retryOrFail(ctx, logger, task, jobID, nil, err)
	}
	if err := r.setStatus(ctx, jobID, domain.JobRunning); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	r.track(jobID, &activeRun{graph: g, cancel: cancel})
	defer r.untrack(jobID)

	opts := r.runOptions(jobID)
	st, err := g.Initialize(runCtx, nil, opts...)
	if err == nil {
		st, err = g.Run(runCtx, st, opts...)
	}

	switch {
	case errors.Is(context.Cause(runCtx), domain.ErrTaskRevoked):
		logger.Info("job stopped")
		r.finish(context.WithoutCancel(ctx), logger, jobID, st)
		return nil
	case err == nil && ctx.Err() != nil:
		// The worker is shutting down mid-run.
		return ctx.Err()
	case err == nil:
		r.finish(ctx, logger, jobID, st)
		return nil
	case permanent(err):
		logger.Error("job cannot run", "err", err)
		r.fail(ctx, logger, jobID, st)
		return nil
	default:
		return r.retryOrFail(ctx, logger, task, jobID, st, err)
	}
}

func (r *JobRunner) retryOrFail(ctx context.Context, logger *slog.Logger, task ports.Task, jobID string, st *domain.State, err error) error {
	if task.Final() {
		logger.Error("job failed, retries exhausted", "err", err)
		r.fail(ctx, logger, jobID, st)
	} else {
		logger.Warn("job attempt failed", "err", err)
	}
	return err
}

func (r *JobRunner) finish(ctx context.Context, logger *slog.Logger, jobID string, st *domain.State) {
	if st != nil {
		if err := r.Jobs.SetOutput(ctx, jobID, st); err != nil {
			logger.Error("failed to store job output", "err", err)
		}
	}
	if err := r.setStatus(ctx, jobID, domain.JobDone); err != nil {
		logger.Error("failed to mark job done", "err", err)
		return
	}
	logger.Info("job done")
}

func (r *JobRunner) fail(ctx context.Context, logger *slog.Logger, jobID string, st *domain.State) {
	if st != nil {
		if err := r.Jobs.SetOutput(ctx, jobID, st); err != nil {
			logger.Error("failed to store job output", "err", err)
		}
	}
	if err := r.setStatus(ctx, jobID, domain.JobFailed); err != nil {
		logger.Error("failed to mark job failed", "err", err)
	}
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, domain.ErrGraphNotFound) ||
		errors.Is(err, domain.ErrNoStartNode) ||
		errors.Is(err, domain.ErrUnknownNodeType) ||
		errors.Is(err, domain.ErrDuplicateStart) ||
		errors.Is(err, domain.ErrDuplicateInit) ||
		errors.Is(err, domain.ErrNodeNotFound)
}

func (r *JobRunner) load(ctx context.Context, graphID string) (*graph.Graph, error) {
	doc, err := r.Graphs.Load(ctx, graphID)
	if err != nil {
		return nil, err
	}
	opts := append([]graph.Option{graph.WithLogger(r.logger)}, r.graphOpts...)
	return graph.FromDocument(doc, r.Factory, opts...)
}

func (r *JobRunner) runOptions(jobID string) []graph.RunOption {
	opts := []graph.RunOption{
		graph.WithJobID(jobID),
		graph.WithHooks(r.hooks),
		graph.WithLogFunc(func(ctx context.Context, entry domain.LogEntry) {
			if err := r.Jobs.AppendLog(ctx, entry); err != nil {
				r.logger.Warn("failed to append job log", "job_id", jobID, "err", err)
			}
		}),
		graph.WithInputFunc(r.awaitInput(jobID)),
	}
	if r.tracer != nil {
		opts = append(opts, graph.WithTracer(r.tracer))
	}
	return opts
}

// awaitInput pauses the job in INPUT_REQUIRED until SendInput delivers a
// value. The status only changes once the subscription is live.
func (r *JobRunner) awaitInput(jobID string) graph.InputFunc {
	return func(ctx context.Context, n *graph.Node, req *graph.BeforeResult) (string, error) {
		v, err := ports.AwaitFirst(ctx, r.Inputs, ports.InputKey(jobID), func(ctx context.Context) error {
			return r.setStatus(ctx, jobID, domain.JobInputRequired)
		})
		if err != nil {
			return "", err
		}
		if err := r.setStatus(ctx, jobID, domain.JobRunning); err != nil {
			return "", err
		}
		return v, nil
	}
}

func (r *JobRunner) setStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	if err := r.Jobs.UpdateStatus(ctx, jobID, status); err != nil {
		return err
	}
	r.emitStatus(ctx, jobID, status)
	return nil
}

func (r *JobRunner) emitStatus(ctx context.Context, jobID string, status domain.JobStatus) {
	r.logger.Debug("job status changed", "job_id", jobID, "status", status)
	if r.hooks.OnJobStatus != nil {
		r.hooks.OnJobStatus(ctx, &domain.JobEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventJobStatus, JobID: jobID},
			Status:    status,
		})
	}
}

func (r *JobRunner) track(jobID string, run *activeRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[jobID] = run
}

func (r *JobRunner) untrack(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, jobID)
}

// SendInput answers the pending input request of the job.
func (r *JobRunner) SendInput(ctx context.Context, jobID, value string) error {
	clean, err := sanitize(value, maxInputSize(r.maxInput))
	if err != nil {
		return err
	}
	job, err := r.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobInputRequired {
		return fmt.Errorf("%w: status is %s", domain.ErrNotAwaitingInput, job.Status)
	}
	return r.Inputs.Publish(ctx, ports.InputKey(jobID), clean)
}

// Stop forces the job to DONE, halts its traversal when it runs in this
// process and revokes its task. Stopping a finished job is a no-op.
func (r *JobRunner) Stop(ctx context.Context, jobID string) error {
	job, err := r.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if err := r.setStatus(ctx, jobID, domain.JobDone); err != nil {
		return err
	}

	r.mu.Lock()
	run := r.active[jobID]
	r.mu.Unlock()
	if run != nil {
		run.graph.Stop()
		run.cancel(domain.ErrTaskRevoked)
	}

	if job.TaskID != "" {
		if err := r.Queue.Revoke(ctx, job.TaskID); err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
			return fmt.Errorf("failed to revoke task: %w", err)
		}
	}
	r.logger.Info("job stop requested", "job_id", jobID)
	return nil
}

// Status returns the job record.
func (r *JobRunner) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	return r.Jobs.Get(ctx, jobID)
}

// List returns the jobs of graphID in creation order.
func (r *JobRunner) List(ctx context.Context, graphID string) ([]*domain.Job, error) {
	return r.Jobs.List(ctx, graphID)
}

// Logs returns the job log.
func (r *JobRunner) Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	if _, err := r.Jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return r.Jobs.Logs(ctx, jobID)
}

// Output returns the final state of a finished job.
func (r *JobRunner) Output(ctx context.Context, jobID string) (*domain.State, error) {
	return r.Jobs.Output(ctx, jobID)
}

// RunLocal initializes and runs g in the calling goroutine without any
// store or queue. input answers nodes that request input; extra options
// are appended to the runner's own.
func (r *JobRunner) RunLocal(ctx context.Context, g *graph.Graph, st *domain.State, input graph.InputFunc, extra ...graph.RunOption) (*domain.State, error) {
	opts := []graph.RunOption{graph.WithHooks(r.hooks), graph.WithRunLogger(r.logger)}
	if input != nil {
		opts = append(opts, graph.WithInputFunc(input))
	}
	if r.tracer != nil {
		opts = append(opts, graph.WithTracer(r.tracer))
	}
	opts = append(opts, extra...)

	st, err := g.Initialize(ctx, st, opts...)
	if err != nil {
		return st, err
	}
	return g.Run(ctx, st, opts...)
}
