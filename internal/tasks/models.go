package tasks

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a unit of background work. The prefix names the entity
// class the work targets, which is how a task is traced back to a source,
// media item, or media server after the fact.
type Kind string

const (
	KindIndexSource          Kind = "source:index"
	KindCheckSourceDirectory Kind = "source:dir-check"
	KindCopySourceImages     Kind = "source:image-copy"
	KindReconcileSourceMedia Kind = "source:reconcile"
	KindFetchMediaMetadata   Kind = "media:metadata"
	KindFetchMediaThumbnail  Kind = "media:thumbnail"
	KindDownloadMedia        Kind = "media:download"
	KindRescanServer         Kind = "server:rescan"
)

// Priority returns the dispatch priority for a kind. Lower values are
// claimed first within a queue partition, so cheap bookkeeping runs before
// metadata discovery, which runs before thumbnails and full downloads.
func (k Kind) Priority() int {
	switch k {
	case KindDownloadMedia:
		return 15
	case KindFetchMediaThumbnail:
		return 10
	case KindIndexSource, KindFetchMediaMetadata:
		return 5
	default:
		return 0
	}
}

// TargetType classifies what entity a task's target identifier refers to.
type TargetType string

const (
	TargetSource  TargetType = "source"
	TargetMedia   TargetType = "media"
	TargetServer  TargetType = "server"
	TargetUnknown TargetType = "unknown"
)

// Target pairs a target classification with the entity identifier.
type Target struct {
	Type TargetType
	ID   uuid.UUID
}

// Status is the lifecycle state of a task row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is a persisted unit of background work. Tasks are keyed by
// (kind, target, args): enqueueing an identical key replaces any pending
// row rather than stacking a duplicate.
type Task struct {
	ID       int64
	Kind     Kind
	TargetID uuid.UUID
	Args     string

	// Queue partitions dispatch. At most one task per queue runs at a
	// time; distinct queues proceed independently. Empty means the
	// shared global partition.
	Queue string

	Priority    int
	Status      Status
	Attempts    int
	MaxAttempts int
	RunAt       time.Time

	// Repeat reschedules the task this long after success. Zero means
	// one-shot.
	Repeat time.Duration

	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Target decodes which entity this task operates on from its kind prefix.
func (t *Task) Target() Target {
	kind := string(t.Kind)
	idx := strings.IndexByte(kind, ':')
	if idx <= 0 {
		return Target{Type: TargetUnknown, ID: t.TargetID}
	}
	switch kind[:idx] {
	case "source":
		return Target{Type: TargetSource, ID: t.TargetID}
	case "media":
		return Target{Type: TargetMedia, ID: t.TargetID}
	case "server":
		return Target{Type: TargetServer, ID: t.TargetID}
	default:
		return Target{Type: TargetUnknown, ID: t.TargetID}
	}
}
