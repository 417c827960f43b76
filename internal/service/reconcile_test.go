package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rowan/commitdeck/internal/domain"
	"github.com/rowan/commitdeck/internal/gateway"
	"github.com/rowan/commitdeck/internal/repository"
)

type fakeSource struct {
	refs        []domain.CommitRef
	listErr     error
	detailErrs  map[string]error
	detailCalls []string
}

func (f *fakeSource) ListCommits(ctx context.Context, repo string, opts *gateway.ListOptions) ([]domain.CommitRef, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.refs, nil
}

func (f *fakeSource) GetCommitDetail(ctx context.Context, repo, sha string) (*domain.CommitDetail, error) {
	f.detailCalls = append(f.detailCalls, sha)
	if err := f.detailErrs[sha]; err != nil {
		return nil, err
	}
	for _, ref := range f.refs {
		if ref.SHA == sha {
			return &domain.CommitDetail{
				CommitRef: ref,
				Additions: 10,
				Deletions: 2,
				Total:     12,
				Files: []domain.CommitFile{
					{Filename: "main.go", Status: domain.FileStatusModified, Additions: 10, Deletions: 2, Changes: 12},
				},
			}, nil
		}
	}
	return nil, errors.New("unknown sha")
}

type fakeStore struct {
	records   map[string]*domain.Commit
	upsertErr error
	upserts   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*domain.Commit)}
}

func (f *fakeStore) GetBySHA(ctx context.Context, sha string) (*domain.Commit, error) {
	if c, ok := f.records[sha]; ok {
		snapshot := *c
		return &snapshot, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) Upsert(ctx context.Context, commit *domain.Commit, files []domain.CommitFile) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, commit.SHA)
	stored := *commit
	f.records[commit.SHA] = &stored
	return nil
}

type fakeAnnotator struct {
	enabled bool
	failFor map[string]bool
	calls   []string
}

func (f *fakeAnnotator) Enabled() bool { return f.enabled }

func (f *fakeAnnotator) Annotate(ctx context.Context, detail *domain.CommitDetail) *string {
	f.calls = append(f.calls, detail.SHA)
	if f.failFor[detail.SHA] {
		return nil
	}
	text := "summary of " + detail.ShortSHA
	return &text
}

func ref(sha, author string) domain.CommitRef {
	short := sha
	if len(short) > 7 {
		short = short[:7]
	}
	return domain.CommitRef{
		Repository:  "acme/widgets",
		SHA:         sha,
		ShortSHA:    short,
		Message:     "fix parser\n\nlonger body",
		AuthorName:  author,
		AuthorEmail: author + "@acme.test",
		AuthoredAt:  time.Now(),
	}
}

func newService(src CommitSource, store *fakeStore, ann *fakeAnnotator, cfg *ReconcileConfig) *ReconcileService {
	if cfg == nil {
		cfg = &ReconcileConfig{}
	}
	return NewReconcileService(src, store, ann, nil, cfg)
}

func TestReconcileBlacklistNeverWritten(t *testing.T) {
	src := &fakeSource{refs: []domain.CommitRef{
		ref("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "dependabot[bot]"),
		ref("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "alice"),
	}}
	store := newFakeStore()
	svc := newService(src, store, &fakeAnnotator{}, &ReconcileConfig{
		AuthorBlacklist: []string{"dependabot[bot]"},
	})

	res, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Skipped != 1 {
		t.Errorf("skipped: got %d, want 1", res.Skipped)
	}
	if res.RecordsWritten != 1 {
		t.Errorf("written: got %d, want 1", res.RecordsWritten)
	}
	if _, ok := store.records["aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"]; ok {
		t.Error("blacklisted author's commit must never be written")
	}
	for _, sha := range src.detailCalls {
		if sha == "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
			t.Error("blacklisted author's commit must never be detail-fetched")
		}
	}
}

func TestReconcileFullyProcessedSkip(t *testing.T) {
	sha := "cccccccccccccccccccccccccccccccccccccccc"
	src := &fakeSource{refs: []domain.CommitRef{ref(sha, "alice")}}
	store := newFakeStore()
	note := "already summarized"
	store.records[sha] = &domain.Commit{SHA: sha, AISummary: &note}
	ann := &fakeAnnotator{enabled: true}
	svc := newService(src, store, ann, nil)

	res, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{Annotate: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Skipped != 1 || res.RecordsWritten != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(src.detailCalls) != 0 {
		t.Errorf("detail calls: got %d, want 0 (idempotent skip)", len(src.detailCalls))
	}
	if len(ann.calls) != 0 {
		t.Errorf("annotation calls: got %d, want 0 (idempotent skip)", len(ann.calls))
	}
}

func TestReconcileAnnotatesPartiallyProcessedInPlace(t *testing.T) {
	sha := "dddddddddddddddddddddddddddddddddddddddd"
	src := &fakeSource{refs: []domain.CommitRef{ref(sha, "alice")}}
	store := newFakeStore()
	created := time.Now().Add(-24 * time.Hour)
	store.records[sha] = &domain.Commit{SHA: sha, Repository: "acme/widgets", CreatedAt: created}
	ann := &fakeAnnotator{enabled: true}
	svc := newService(src, store, ann, nil)

	res, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{Annotate: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ann.calls) != 1 {
		t.Fatalf("annotation calls: got %d, want exactly 1", len(ann.calls))
	}
	if res.RecordsWritten != 1 {
		t.Errorf("written: got %d, want 1", res.RecordsWritten)
	}
	if len(store.records) != 1 {
		t.Errorf("records: got %d, want 1 (same primary key, updated in place)", len(store.records))
	}
	got := store.records[sha]
	if got.AISummary == nil {
		t.Fatal("record should have been annotated")
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("update should preserve the original creation time")
	}
}

func TestReconcileDetailCap(t *testing.T) {
	src := &fakeSource{refs: []domain.CommitRef{
		ref("1111111111111111111111111111111111111111", "alice"),
		ref("2222222222222222222222222222222222222222", "alice"),
		ref("3333333333333333333333333333333333333333", "alice"),
	}}
	store := newFakeStore()
	svc := newService(src, store, &fakeAnnotator{}, nil)

	res, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{
		DetailCap: 2,
		Annotate:  false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.RecordsWritten != 2 {
		t.Errorf("written: got %d, want 2", res.RecordsWritten)
	}
	if len(res.PerCommit) != 2 {
		t.Fatalf("perCommit: got %d entries, want 2", len(res.PerCommit))
	}
	for _, pc := range res.PerCommit {
		if pc.Annotation != nil {
			t.Errorf("annotation for %s: got %q, want nil", pc.ShortHash, *pc.Annotation)
		}
	}
	// The third reference is left for a future run: neither skipped nor failed.
	if res.Skipped != 0 || res.Failed != 0 {
		t.Errorf("capped reference miscounted: %+v", res)
	}
	if len(src.detailCalls) != 2 {
		t.Errorf("detail calls: got %d, want 2", len(src.detailCalls))
	}
	if _, ok := store.records["3333333333333333333333333333333333333333"]; ok {
		t.Error("capped reference must be left untouched")
	}
}

func TestReconcileDetailFetchFailureIsolated(t *testing.T) {
	bad := "4444444444444444444444444444444444444444"
	good := "5555555555555555555555555555555555555555"
	src := &fakeSource{
		refs: []domain.CommitRef{ref(bad, "alice"), ref(good, "alice")},
		detailErrs: map[string]error{
			bad: errors.New("502 bad gateway"),
		},
	}
	store := newFakeStore()
	svc := newService(src, store, &fakeAnnotator{}, nil)

	res, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{})
	if err != nil {
		t.Fatalf("one bad commit must not abort the batch: %v", err)
	}

	if res.Failed != 1 || res.RecordsWritten != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, ok := store.records[good]; !ok {
		t.Error("sibling commit should still be written")
	}
}

func TestReconcileAnnotationFailureDegrades(t *testing.T) {
	failing := "abc1234000000000000000000000000000000000"
	ok := "6666666666666666666666666666666666666666"
	src := &fakeSource{refs: []domain.CommitRef{ref(failing, "alice"), ref(ok, "alice")}}
	store := newFakeStore()
	ann := &fakeAnnotator{enabled: true, failFor: map[string]bool{failing: true}}
	svc := newService(src, store, ann, nil)

	res, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{Annotate: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.RecordsWritten != 2 {
		t.Fatalf("written: got %d, want 2", res.RecordsWritten)
	}
	failed := store.records[failing]
	if failed.AISummary != nil || failed.AIAnalyzedAt != nil {
		t.Error("failed annotation must persist with nil summary and nil timestamp")
	}
	sibling := store.records[ok]
	if sibling.AISummary == nil {
		t.Error("sibling commit should still receive an annotation")
	}
}

func TestReconcileReusesConcurrentlyStoredAnnotation(t *testing.T) {
	sha := "7777777777777777777777777777777777777777"
	src := &fakeSource{refs: []domain.CommitRef{ref(sha, "alice")}}
	store := newFakeStore()
	ann := &fakeAnnotator{enabled: true}

	// Simulate an annotation landing between the existence check and the
	// detail fetch: seed the store from inside the source's detail call.
	raced := "raced summary"
	svc := newService(&racingSource{fakeSource: src, store: store, sha: sha, summary: &raced}, store, ann, nil)

	res, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{Annotate: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ann.calls) != 0 {
		t.Errorf("annotation calls: got %d, want 0 (stored summary reused)", len(ann.calls))
	}
	if res.RecordsWritten != 1 {
		t.Errorf("written: got %d, want 1", res.RecordsWritten)
	}
	got := store.records[sha]
	if got.AISummary == nil || *got.AISummary != raced {
		t.Errorf("stored annotation should be reused verbatim, got %v", got.AISummary)
	}
}

// racingSource plants a fully processed record during the detail fetch.
type racingSource struct {
	*fakeSource
	store   *fakeStore
	sha     string
	summary *string
}

func (r *racingSource) GetCommitDetail(ctx context.Context, repo, sha string) (*domain.CommitDetail, error) {
	r.store.records[r.sha] = &domain.Commit{SHA: r.sha, AISummary: r.summary}
	return r.fakeSource.GetCommitDetail(ctx, repo, sha)
}

func TestReconcilePersistenceFailureAborts(t *testing.T) {
	src := &fakeSource{refs: []domain.CommitRef{ref("8888888888888888888888888888888888888888", "alice")}}
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")
	svc := newService(src, store, &fakeAnnotator{}, nil)

	_, err := svc.ReconcileRepo(context.Background(), "acme/widgets", &ReconcileOptions{})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("persistence failure must propagate, got %v", err)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fix parser\n\nlonger body", "fix parser"},
		{"single line", "single line"},
		{"  padded \nrest", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
