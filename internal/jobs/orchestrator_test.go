package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rowan/commitdeck/internal/service"
)

type fakeReconciler struct {
	mu      sync.Mutex
	results map[string]*service.RepoResult
	errs    map[string]error
	calls   []string
	opts    map[string]*service.ReconcileOptions
}

func (f *fakeReconciler) ReconcileRepo(ctx context.Context, repo string, opts *service.ReconcileOptions) (*service.RepoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, repo)
	if f.opts == nil {
		f.opts = make(map[string]*service.ReconcileOptions)
	}
	f.opts[repo] = opts
	if err := f.errs[repo]; err != nil {
		return nil, err
	}
	if res, ok := f.results[repo]; ok {
		return res, nil
	}
	return &service.RepoResult{Repository: repo}, nil
}

type fakeCollector struct {
	result *CollectionResult
	err    error
	steps  [][2]int
}

func (f *fakeCollector) Run(ctx context.Context, progress func(done, total int)) (*CollectionResult, error) {
	for _, s := range f.steps {
		progress(s[0], s[1])
	}
	return f.result, f.err
}

type progressRecorder struct {
	mu      sync.Mutex
	updates []int
}

func (p *progressRecorder) UpdateProgress(id string, percent int) {
	p.mu.Lock()
	p.updates = append(p.updates, percent)
	p.mu.Unlock()
}

func summary(short string, annotation *string) service.CommitSummary {
	return service.CommitSummary{ShortHash: short, Annotation: annotation}
}

func TestOrchestratorFetchAggregatesRepos(t *testing.T) {
	note := "touches the parser"
	rec := &fakeReconciler{
		results: map[string]*service.RepoResult{
			"acme/widgets": {
				Repository:     "acme/widgets",
				RecordsWritten: 2,
				PerCommit:      []service.CommitSummary{summary("abc1234", &note), summary("def5678", nil)},
			},
			"acme/gadgets": {
				Repository:     "acme/gadgets",
				RecordsWritten: 1,
				PerCommit:      []service.CommitSummary{summary("feed042", nil)},
			},
		},
	}
	progress := &progressRecorder{}
	o := NewOrchestrator(rec, nil, progress, OrchestratorConfig{DefaultAnnotate: true}, nil)

	res, err := o.Work(context.Background(), Job{
		ID:      "job-1",
		Type:    TypeFetchCommits,
		Payload: FetchCommitsPayload{Repositories: []string{"acme/widgets", "acme/gadgets"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetch, ok := res.(*FetchResult)
	if !ok {
		t.Fatalf("unexpected result type %T", res)
	}
	if fetch.RecordsWritten != 3 {
		t.Errorf("recordsWritten: got %d, want 3", fetch.RecordsWritten)
	}
	if len(fetch.PerCommit) != 3 {
		t.Errorf("perCommit: got %d entries, want 3", len(fetch.PerCommit))
	}

	if got, want := rec.calls, []string{"acme/widgets", "acme/gadgets"}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("repo order: got %v, want %v", got, want)
	}

	// Progress is repos-completed over repos-total, reported after each repo.
	if len(progress.updates) != 2 || progress.updates[0] != 50 || progress.updates[1] != 100 {
		t.Errorf("progress updates: got %v, want [50 100]", progress.updates)
	}

	// Annotate default flows through when the payload leaves it unset.
	if !rec.opts["acme/widgets"].Annotate {
		t.Error("expected annotate default to be applied")
	}
}

func TestOrchestratorFetchPayloadOverrides(t *testing.T) {
	rec := &fakeReconciler{}
	o := NewOrchestrator(rec, nil, &progressRecorder{}, OrchestratorConfig{DefaultAnnotate: true}, nil)

	off := false
	_, err := o.Work(context.Background(), Job{
		ID:   "job-1",
		Type: TypeFetchCommits,
		Payload: FetchCommitsPayload{
			Repositories:     []string{"acme/widgets"},
			PerRepoDetailCap: 2,
			Annotate:         &off,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opts := rec.opts["acme/widgets"]
	if opts.Annotate {
		t.Error("payload annotate=false should override the default")
	}
	if opts.DetailCap != 2 {
		t.Errorf("detail cap: got %d, want 2", opts.DetailCap)
	}
}

func TestOrchestratorFetchPreflightErrors(t *testing.T) {
	t.Run("no reconciler", func(t *testing.T) {
		o := NewOrchestrator(nil, nil, &progressRecorder{}, OrchestratorConfig{}, nil)
		_, err := o.Work(context.Background(), Job{
			Payload: FetchCommitsPayload{Repositories: []string{"acme/widgets"}},
		})
		if !errors.Is(err, ErrFetchUnavailable) {
			t.Errorf("got %v, want ErrFetchUnavailable", err)
		}
	})

	t.Run("no repositories", func(t *testing.T) {
		o := NewOrchestrator(&fakeReconciler{}, nil, &progressRecorder{}, OrchestratorConfig{}, nil)
		_, err := o.Work(context.Background(), Job{Payload: FetchCommitsPayload{}})
		if !errors.Is(err, ErrNoRepositories) {
			t.Errorf("got %v, want ErrNoRepositories", err)
		}
	})
}

func TestOrchestratorFetchRepoFailureFailsJob(t *testing.T) {
	rec := &fakeReconciler{
		errs: map[string]error{"acme/gadgets": errors.New("storage fault")},
	}
	o := NewOrchestrator(rec, nil, &progressRecorder{}, OrchestratorConfig{}, nil)

	_, err := o.Work(context.Background(), Job{
		Payload: FetchCommitsPayload{Repositories: []string{"acme/widgets", "acme/gadgets"}},
	})
	if err == nil || !strings.Contains(err.Error(), "acme/gadgets") {
		t.Errorf("expected error naming the failing repository, got %v", err)
	}
}

func TestOrchestratorFullCollection(t *testing.T) {
	progress := &progressRecorder{}
	o := NewOrchestrator(nil, &fakeCollector{
		result: &CollectionResult{RecordsWritten: 42, RawOutput: "done 42/42\n"},
		steps:  [][2]int{{21, 42}, {42, 42}},
	}, progress, OrchestratorConfig{}, nil)

	res, err := o.Work(context.Background(), Job{Payload: FullCollectionPayload{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coll, ok := res.(*CollectionResult)
	if !ok || coll.RecordsWritten != 42 {
		t.Errorf("unexpected result: %#v", res)
	}
	if len(progress.updates) != 2 || progress.updates[0] != 50 || progress.updates[1] != 100 {
		t.Errorf("progress updates: got %v, want [50 100]", progress.updates)
	}
}

func TestOrchestratorFullCollectionFailure(t *testing.T) {
	o := NewOrchestrator(nil, &fakeCollector{err: errors.New("exit status 1: permission denied")}, &progressRecorder{}, OrchestratorConfig{}, nil)

	_, err := o.Work(context.Background(), Job{Payload: FullCollectionPayload{}})
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("expected captured error content, got %v", err)
	}
}

type bogusPayload struct{}

func (bogusPayload) JobType() Type { return "bogus" }

func TestOrchestratorUnhandledPayload(t *testing.T) {
	o := NewOrchestrator(&fakeReconciler{}, &fakeCollector{}, &progressRecorder{}, OrchestratorConfig{}, nil)

	_, err := o.Work(context.Background(), Job{Payload: bogusPayload{}})
	if err == nil || !strings.Contains(err.Error(), "unhandled job payload") {
		t.Errorf("expected unhandled payload error, got %v", err)
	}
}
