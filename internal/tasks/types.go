package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task is owned by exactly one principal; ownership is the unit the
// authorization rules reason about.
type Task struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status tags task change events.
type Status string

const (
	StatusNew     Status = "NEW"
	StatusUpdated Status = "UPDATED"
	StatusDeleted Status = "DELETED"
)

// Event describes a task change published to the notifier.
type Event struct {
	Task      Task      `json:"task"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	ErrNotFound    = errors.New("tasks: not found")
	ErrInvalidName = errors.New("tasks: name must be 5 to 255 characters")
)

// Repository is the external persistence collaborator. Only the operations
// the service needs are exposed here.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListAll(ctx context.Context) ([]*Task, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Task, error)
	Save(ctx context.Context, task *Task) error
	Update(ctx context.Context, task *Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Notifier is the external event publishing collaborator.
type Notifier interface {
	TaskChanged(ctx context.Context, event Event)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) TaskChanged(context.Context, Event) {}
