package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type tags the closed set of background job kinds.
type Type string

const (
	// TypeFetchCommits is an incremental batch fetch across a repository list.
	TypeFetchCommits Type = "batch-commit-fetch"
	// TypeFullCollection delegates to the external full-history collection run.
	TypeFullCollection Type = "full-collection-run"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is the sealed set of job inputs. The worker switches on the
// concrete type, so adding a job kind without handling it fails loudly at
// dispatch rather than silently at runtime string matching.
type Payload interface {
	JobType() Type
}

// FetchCommitsPayload drives one incremental batch fetch.
type FetchCommitsPayload struct {
	Repositories     []string   `json:"repositories"`
	AuthorAllowList  []string   `json:"authorAllowList,omitempty"`
	EmailAllowList   []string   `json:"emailAllowList,omitempty"`
	Since            *time.Time `json:"since,omitempty"`
	PerRepoDetailCap int        `json:"perRepoDetailCap,omitempty"`
	Annotate         *bool      `json:"annotate,omitempty"` // nil means config default
}

// JobType returns the type tag for a batch commit fetch.
func (FetchCommitsPayload) JobType() Type { return TypeFetchCommits }

// FullCollectionPayload carries no inputs; the external run is self-configured.
type FullCollectionPayload struct{}

// JobType returns the type tag for a full collection run.
func (FullCollectionPayload) JobType() Type { return TypeFullCollection }

// Job is one unit of background work, owned by the Queue for its entire
// lifetime. Only the queue mutates it; callers see copies.
type Job struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Payload     Payload    `json:"payload,omitempty"`
	Status      Status     `json:"status"`
	Progress    *int       `json:"progress,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// newJobID builds an id from type + timestamp + random suffix. Collisions
// are negligible but not cryptographically guaranteed.
func newJobID(t Type) string {
	return fmt.Sprintf("%s-%d-%s", t, time.Now().UnixMilli(), uuid.NewString()[:8])
}
