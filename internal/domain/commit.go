package domain

import "time"

// CommitRef is the lightweight identity of a commit as returned by a
// listing call. It is never persisted directly; the reconciler decides
// whether a full detail fetch is required.
type CommitRef struct {
	Repository  string    // "owner/name"
	SHA         string    // full content hash
	ShortSHA    string    // abbreviated hash (7 chars)
	Message     string
	AuthorName  string
	AuthorEmail string
	AuthoredAt  time.Time
}

// FileStatus represents the change status of a single file in a commit.
type FileStatus string

const (
	FileStatusAdded    FileStatus = "added"
	FileStatusModified FileStatus = "modified"
	FileStatusRemoved  FileStatus = "removed"
	FileStatusRenamed  FileStatus = "renamed"
)

// Commit is the durable commit record keyed by its full content hash.
// A commit with a non-nil AISummary is fully processed and must never be
// re-fetched or re-annotated; a stored commit with a nil AISummary has its
// detail fetched but its annotation pending or disabled.
type Commit struct {
	SHA          string     `gorm:"type:text;primaryKey" json:"sha"`
	ShortSHA     string     `gorm:"type:text;not null" json:"short_sha"`
	Repository   string     `gorm:"type:text;not null;index:idx_commits_repo" json:"repository"`
	Message      string     `gorm:"type:text" json:"message"`
	AuthorName   string     `gorm:"type:text;index:idx_commits_author" json:"author_name"`
	AuthorEmail  string     `gorm:"type:text" json:"author_email"`
	AuthoredAt   time.Time  `gorm:"index:idx_commits_authored_at" json:"authored_at"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	Total        int        `json:"total"`
	FilesChanged int        `json:"files_changed"`
	AISummary    *string    `gorm:"column:ai_summary;type:text" json:"ai_summary,omitempty"`
	AIAnalyzedAt *time.Time `gorm:"column:ai_analyzed_at" json:"ai_analyzed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Files []CommitFile `gorm:"foreignKey:CommitSHA;references:SHA;constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

// TableName returns the database table name for Commit.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Commit) TableName() string {
	return "commits"
}

// FullyProcessed reports whether the commit already carries an annotation.
// Parameters: none.
// Returns:
//   - bool: true when ai_summary is present.
func (c *Commit) FullyProcessed() bool {
	return c.AISummary != nil
}

// CommitFile is one file touched by a commit. Rows are exclusively owned by
// their parent commit and removed with it (cascade).
type CommitFile struct {
	CommitSHA string     `gorm:"type:text;primaryKey" json:"commit_sha"`
	Filename  string     `gorm:"type:text;primaryKey" json:"filename"`
	Status    FileStatus `gorm:"type:text" json:"status"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Changes   int        `json:"changes"`
	Patch     string     `gorm:"type:text" json:"patch,omitempty"`
}

// TableName returns the database table name for CommitFile.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CommitFile) TableName() string {
	return "commit_files"
}

// CommitDetail is the full form of a commit as returned by a detail fetch:
// the reference plus aggregate stats and the per-file change list.
type CommitDetail struct {
	CommitRef
	Additions int
	Deletions int
	Total     int
	Files     []CommitFile
}
