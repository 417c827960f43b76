package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rowan/commitdeck/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no commit matches the requested hash.
var ErrNotFound = errors.New("commit not found")

// CommitRepository is the single write path into the commit tables.
type CommitRepository struct {
	db *gorm.DB
}

// NewCommitRepository creates a new CommitRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CommitRepository: repository instance bound to db.
func NewCommitRepository(db *gorm.DB) *CommitRepository {
	return &CommitRepository{db: db}
}

// GetBySHA retrieves a commit by its full content hash.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sha: full commit hash.
// Returns:
//   - *domain.Commit: commit record if found.
//   - error: ErrNotFound when absent, otherwise the query error.
func (r *CommitRepository) GetBySHA(ctx context.Context, sha string) (*domain.Commit, error) {
	var commit domain.Commit
	if err := r.db.WithContext(ctx).First(&commit, "sha = ?", sha).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &commit, nil
}

// Upsert atomically writes a commit row and its file rows.
// The commit row is keyed by sha, file rows by (commit_sha, filename); both
// sub-writes happen in one transaction so a partial commit/file-set state is
// never observable. The annotation timestamp is stamped only when a summary
// is present.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - commit: commit record to create or replace.
//   - files: file change rows owned by the commit.
// Returns:
//   - error: non-nil if the transaction fails (fully rolled back).
func (r *CommitRepository) Upsert(ctx context.Context, commit *domain.Commit, files []domain.CommitFile) error {
	now := time.Now()
	if commit.AISummary != nil {
		if commit.AIAnalyzedAt == nil {
			commit.AIAnalyzedAt = &now
		}
	} else {
		commit.AIAnalyzedAt = nil
	}
	commit.FilesChanged = len(files)
	commit.UpdatedAt = now
	if commit.CreatedAt.IsZero() {
		commit.CreatedAt = now
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Files").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sha"}},
			UpdateAll: true,
		}).Create(commit).Error; err != nil {
			return err
		}

		// Replace the full file set so files dropped upstream do not linger.
		if err := tx.Where("commit_sha = ?", commit.SHA).Delete(&domain.CommitFile{}).Error; err != nil {
			return err
		}
		for i := range files {
			files[i].CommitSHA = commit.SHA
		}
		if len(files) > 0 {
			if err := tx.Create(&files).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetFiles retrieves the file rows owned by a commit.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sha: full commit hash.
// Returns:
//   - []domain.CommitFile: file change rows.
//   - error: non-nil if the query fails.
func (r *CommitRepository) GetFiles(ctx context.Context, sha string) ([]domain.CommitFile, error) {
	var files []domain.CommitFile
	if err := r.db.WithContext(ctx).Where("commit_sha = ?", sha).Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// ListRecent retrieves commits ordered by authored time, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - repo: repository filter; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Commit: matching commit records.
//   - error: non-nil if the query fails.
func (r *CommitRepository) ListRecent(ctx context.Context, repo string, limit, offset int) ([]domain.Commit, error) {
	var commits []domain.Commit
	query := r.db.WithContext(ctx)
	if repo != "" {
		query = query.Where("repository = ?", repo)
	}
	if err := query.
		Order("authored_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&commits).Error; err != nil {
		return nil, err
	}
	return commits, nil
}

// CountAll counts all stored commits.
func (r *CommitRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Commit{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountAnnotated counts commits that already carry an annotation.
func (r *CommitRepository) CountAnnotated(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Commit{}).
		Where("ai_summary IS NOT NULL").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a commit by hash; file rows go with it (cascade).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sha: full commit hash to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *CommitRepository) Delete(ctx context.Context, sha string) error {
	return r.db.WithContext(ctx).Select("Files").Delete(&domain.Commit{SHA: sha}).Error
}
