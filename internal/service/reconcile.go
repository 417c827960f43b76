package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rowan/commitdeck/internal/domain"
	"github.com/rowan/commitdeck/internal/gateway"
	"github.com/rowan/commitdeck/internal/logger"
	"github.com/rowan/commitdeck/internal/repository"
)

// CommitSource lists commit references and fetches full per-commit detail.
// Implemented by gateway.Client.
type CommitSource interface {
	ListCommits(ctx context.Context, repo string, opts *gateway.ListOptions) ([]domain.CommitRef, error)
	GetCommitDetail(ctx context.Context, repo, sha string) (*domain.CommitDetail, error)
}

// CommitStore is the persisted commit set the reconciler decides against.
// Implemented by repository.CommitRepository.
type CommitStore interface {
	GetBySHA(ctx context.Context, sha string) (*domain.Commit, error)
	Upsert(ctx context.Context, commit *domain.Commit, files []domain.CommitFile) error
}

// Annotator produces an optional summary for a fetched commit.
// Implemented by SummarizerService.
type Annotator interface {
	Enabled() bool
	Annotate(ctx context.Context, detail *domain.CommitDetail) *string
}

// ReconcileService decides, per remote commit reference, whether local work
// is required: skip (already fully processed), fetch detail only, or fetch
// detail and annotate. It guarantees at most one expensive detail fetch and
// at most one annotation per content hash.
type ReconcileService struct {
	source    CommitSource
	store     CommitStore
	annotator Annotator
	logger    *logger.Logger

	detailCap int           // detail fetches per repository per run
	pacing    time.Duration // fixed delay between detail fetches
	blacklist []string      // author display names excluded entirely
}

// ReconcileConfig holds configuration for the reconcile service.
type ReconcileConfig struct {
	DetailCap       int
	PacingDelay     time.Duration
	AuthorBlacklist []string
}

// NewReconcileService creates a new reconcile service.
// Parameters:
//   - source: remote commit source.
//   - store: persisted commit set.
//   - annotator: summary generator; may be disabled.
//   - log: logger; nil uses the default logger.
//   - cfg: cap, pacing, and blacklist settings.
// Returns:
//   - *ReconcileService: initialized service.
func NewReconcileService(source CommitSource, store CommitStore, annotator Annotator, log *logger.Logger, cfg *ReconcileConfig) *ReconcileService {
	if log == nil {
		log = logger.GetDefault()
	}
	detailCap := cfg.DetailCap
	if detailCap <= 0 {
		detailCap = 5
	}
	return &ReconcileService{
		source:    source,
		store:     store,
		annotator: annotator,
		logger:    log,
		detailCap: detailCap,
		pacing:    cfg.PacingDelay,
		blacklist: cfg.AuthorBlacklist,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ReconcileService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// ReconcileOptions holds per-run options for one repository pass.
type ReconcileOptions struct {
	Since           time.Time
	AuthorAllowList []string
	EmailAllowList  []string
	DetailCap       int  // overrides the configured cap when > 0
	Annotate        bool // annotation enabled for this run
}

// CommitSummary is the per-commit result reported to the caller.
type CommitSummary struct {
	ShortHash        string  `json:"shortHash"`
	Repo             string  `json:"repo"`
	MessageFirstLine string  `json:"messageFirstLine"`
	Author           string  `json:"author"`
	FilesChanged     int     `json:"filesChanged"`
	Additions        int     `json:"additions"`
	Deletions        int     `json:"deletions"`
	Annotation       *string `json:"annotation"`
}

// RepoResult aggregates one repository pass.
type RepoResult struct {
	Repository     string          `json:"repository"`
	RecordsWritten int             `json:"recordsWritten"`
	Skipped        int             `json:"skipped"`
	Failed         int             `json:"failed"`
	PerCommit      []CommitSummary `json:"perCommit"`
}

// ReconcileRepo runs the full decision pipeline for one repository.
// References are processed in gateway order (newest first); a single bad
// reference is logged and dropped without aborting the batch; a storage
// error aborts the pass because the processed-state invariant can no longer
// be trusted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - repo: repository identifier ("owner/name").
//   - opts: per-run filters and flags; nil uses defaults.
// Returns:
//   - *RepoResult: written/skipped/failed counts and per-commit summaries.
//   - error: non-nil on listing or persistence failure.
func (s *ReconcileService) ReconcileRepo(ctx context.Context, repo string, opts *ReconcileOptions) (*RepoResult, error) {
	if opts == nil {
		opts = &ReconcileOptions{}
	}

	refs, err := s.source.ListCommits(ctx, repo, &gateway.ListOptions{
		Since:           opts.Since,
		AuthorAllowList: opts.AuthorAllowList,
		EmailAllowList:  opts.EmailAllowList,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list commits for %s: %w", repo, err)
	}

	result := &RepoResult{Repository: repo}

	detailCap := opts.DetailCap
	if detailCap <= 0 {
		detailCap = s.detailCap
	}
	annotate := opts.Annotate && s.annotator.Enabled()

	fetched := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		// Blacklisted authors are neither fetched nor stored.
		if s.blacklisted(ref.AuthorName) {
			result.Skipped++
			continue
		}

		existing, err := s.store.GetBySHA(ctx, ref.SHA)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return result, fmt.Errorf("failed to check commit %s: %w", ref.ShortSHA, err)
		}
		if existing != nil && existing.FullyProcessed() {
			result.Skipped++
			continue
		}

		// References beyond the cap are left for a subsequent run and are
		// not counted as skipped or failed.
		if fetched >= detailCap {
			continue
		}
		if fetched > 0 && s.pacing > 0 {
			time.Sleep(s.pacing)
		}
		fetched++

		detail, err := s.source.GetCommitDetail(ctx, repo, ref.SHA)
		if err != nil {
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldRepo:   repo,
				logger.FieldCommit: ref.ShortSHA,
			}).WithError(err).Warn("Detail fetch failed, dropping reference")
			result.Failed++
			continue
		}

		// Re-check against a race where annotation completed while the
		// detail fetch was in flight; a stored summary is reused verbatim
		// instead of invoking the annotator again.
		recheck, err := s.store.GetBySHA(ctx, ref.SHA)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return result, fmt.Errorf("failed to re-check commit %s: %w", ref.ShortSHA, err)
		}
		if recheck != nil {
			existing = recheck
		}

		var annotation *string
		switch {
		case existing != nil && existing.FullyProcessed():
			annotation = existing.AISummary
		case annotate:
			annotation = s.annotator.Annotate(ctx, detail)
		}

		commit := &domain.Commit{
			SHA:         detail.SHA,
			ShortSHA:    detail.ShortSHA,
			Repository:  repo,
			Message:     detail.Message,
			AuthorName:  detail.AuthorName,
			AuthorEmail: detail.AuthorEmail,
			AuthoredAt:  detail.AuthoredAt,
			Additions:   detail.Additions,
			Deletions:   detail.Deletions,
			Total:       detail.Total,
			AISummary:   annotation,
		}
		if existing != nil {
			commit.CreatedAt = existing.CreatedAt
		}

		// Written regardless of annotation outcome so a future run does not
		// refetch detail but may still annotate.
		if err := s.store.Upsert(ctx, commit, detail.Files); err != nil {
			return result, fmt.Errorf("failed to persist commit %s: %w", ref.ShortSHA, err)
		}

		result.RecordsWritten++
		result.PerCommit = append(result.PerCommit, CommitSummary{
			ShortHash:        detail.ShortSHA,
			Repo:             repo,
			MessageFirstLine: firstLine(detail.Message),
			Author:           detail.AuthorName,
			FilesChanged:     len(detail.Files),
			Additions:        detail.Additions,
			Deletions:        detail.Deletions,
			Annotation:       annotation,
		})
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldRepo: repo,
		"written":        result.RecordsWritten,
		"skipped":        result.Skipped,
		"failed":         result.Failed,
	}).Info("Repository reconciliation completed")

	return result, nil
}

// blacklisted reports an exact, case-sensitive match on the author display name.
func (s *ReconcileService) blacklisted(author string) bool {
	for _, b := range s.blacklist {
		if author == b {
			return true
		}
	}
	return false
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(line)
}
