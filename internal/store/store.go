package store

import (
	"context"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// DefinitionStore persists published workflow definitions.
type DefinitionStore interface {
	GetDefinition(ctx context.Context, id string) (*schema.WorkflowType, error)
	SaveDefinition(ctx context.Context, def *schema.WorkflowType) error
	ListDefinitions(ctx context.Context) ([]*schema.WorkflowType, error)
	DeleteDefinition(ctx context.Context, id string) error
}

// InstanceStore persists workflow instances keyed by correlation id.
// LoadInstance and DeleteInstance report NOT_FOUND for unknown ids.
type InstanceStore interface {
	LoadInstance(ctx context.Context, id string) (*schema.WorkflowInstance, error)
	SaveInstance(ctx context.Context, inst *schema.WorkflowInstance) error
	DeleteInstance(ctx context.Context, id string) error
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*schema.WorkflowInstance, error)
}

// EventStore is the append-only instance event log.
type EventStore interface {
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, instanceID string, since int64) ([]*Event, error)
}

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	DefinitionStore
	InstanceStore
	EventStore

	Close() error
}

// Locker serializes work on one key across callers. Acquire fails with a
// LOCKED error when the key is held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. A holder that outlives the TTL must Extend it;
// Extend fails with LOCKED once the hold expired and was taken over.
// Release is idempotent.
type Lease interface {
	Extend(ctx context.Context) error
	Release()
}
