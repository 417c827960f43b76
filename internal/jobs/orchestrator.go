package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rowan/commitdeck/internal/logger"
	"github.com/rowan/commitdeck/internal/service"
)

// ErrNoRepositories is raised before any work when a fetch job has nothing to do.
var ErrNoRepositories = errors.New("no repositories to fetch")

// ErrFetchUnavailable is raised when the remote gateway was never configured
// (missing credential at startup).
var ErrFetchUnavailable = errors.New("commit fetching is unavailable: github token not configured")

// Reconciler runs the incremental fetch pipeline for one repository.
// Implemented by service.ReconcileService.
type Reconciler interface {
	ReconcileRepo(ctx context.Context, repo string, opts *service.ReconcileOptions) (*service.RepoResult, error)
}

// ProgressReporter receives coarse progress updates from a running job.
// Implemented by Queue.
type ProgressReporter interface {
	UpdateProgress(id string, percent int)
}

// FetchResult is the aggregate outcome of a batch commit fetch.
type FetchResult struct {
	RecordsWritten int                     `json:"recordsWritten"`
	PerCommit      []service.CommitSummary `json:"perCommit"`
}

// OrchestratorConfig holds per-job defaults applied when a payload leaves
// a field unset.
type OrchestratorConfig struct {
	DefaultRepos     []string
	DefaultAnnotate  bool
	DefaultSinceDays int
	PacingDelay      time.Duration // fixed delay between repositories
}

// Orchestrator is the single worker function behind the queue. It branches
// on the typed payload: batch fetches drive the reconciler across a
// repository list with fixed pacing; full collection delegates to the
// collector capability.
type Orchestrator struct {
	reconciler Reconciler // nil when the gateway is unavailable
	collector  Collector
	progress   ProgressReporter
	cfg        OrchestratorConfig
	log        *logger.Logger
}

// NewOrchestrator creates the worker implementation.
// Parameters:
//   - reconciler: per-repository fetch pipeline; nil marks fetching unavailable.
//   - collector: full collection capability.
//   - progress: queue progress sink.
//   - cfg: payload defaults and pacing.
//   - log: logger; nil uses the default logger.
// Returns:
//   - *Orchestrator: initialized orchestrator; register Work with the queue.
func NewOrchestrator(reconciler Reconciler, collector Collector, progress ProgressReporter, cfg OrchestratorConfig, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Orchestrator{
		reconciler: reconciler,
		collector:  collector,
		progress:   progress,
		cfg:        cfg,
		log:        log,
	}
}

// Work executes one job. Registered with the queue as its single worker.
// Parameters:
//   - ctx: job-scoped context (carries the queue's timeout).
//   - job: snapshot of the job being executed.
// Returns:
//   - any: type-specific result recorded on the job.
//   - error: non-nil marks the job failed.
func (o *Orchestrator) Work(ctx context.Context, job Job) (any, error) {
	switch payload := job.Payload.(type) {
	case FetchCommitsPayload:
		return o.fetchCommits(ctx, job.ID, payload)
	case FullCollectionPayload:
		return o.fullCollection(ctx, job.ID)
	default:
		return nil, fmt.Errorf("unhandled job payload %T", job.Payload)
	}
}

// fetchCommits iterates the repository list in order, reconciling each and
// reporting progress as repos-completed over repos-total. Any repository
// failure (listing or persistence) fails the job; per-commit detail-fetch
// errors are already contained inside the reconciler.
func (o *Orchestrator) fetchCommits(ctx context.Context, jobID string, payload FetchCommitsPayload) (*FetchResult, error) {
	if o.reconciler == nil {
		return nil, ErrFetchUnavailable
	}

	repos := payload.Repositories
	if len(repos) == 0 {
		repos = o.cfg.DefaultRepos
	}
	if len(repos) == 0 {
		return nil, ErrNoRepositories
	}

	annotate := o.cfg.DefaultAnnotate
	if payload.Annotate != nil {
		annotate = *payload.Annotate
	}

	var since time.Time
	if payload.Since != nil {
		since = *payload.Since
	} else if o.cfg.DefaultSinceDays > 0 {
		since = time.Now().AddDate(0, 0, -o.cfg.DefaultSinceDays)
	}

	result := &FetchResult{PerCommit: []service.CommitSummary{}}
	for i, repo := range repos {
		if i > 0 && o.cfg.PacingDelay > 0 {
			time.Sleep(o.cfg.PacingDelay)
		}

		repoCtx := logger.SetRepo(ctx, repo)
		res, err := o.reconciler.ReconcileRepo(repoCtx, repo, &service.ReconcileOptions{
			Since:           since,
			AuthorAllowList: payload.AuthorAllowList,
			EmailAllowList:  payload.EmailAllowList,
			DetailCap:       payload.PerRepoDetailCap,
			Annotate:        annotate,
		})
		if err != nil {
			return nil, fmt.Errorf("repository %s: %w", repo, err)
		}

		result.RecordsWritten += res.RecordsWritten
		result.PerCommit = append(result.PerCommit, res.PerCommit...)

		// Progress is repositories completed over total, nothing finer.
		o.progress.UpdateProgress(jobID, (i+1)*100/len(repos))
	}

	return result, nil
}

// fullCollection delegates to the out-of-process full-history run, relaying
// its progress and resolving on its exit status.
func (o *Orchestrator) fullCollection(ctx context.Context, jobID string) (*CollectionResult, error) {
	res, err := o.collector.Run(ctx, func(done, total int) {
		o.progress.UpdateProgress(jobID, done*100/total)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
