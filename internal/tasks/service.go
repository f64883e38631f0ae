package tasks

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"taskhub.org/internal/auth"
)

// Service applies the dual authorization rule around the repository: an
// object-level check before every single-resource read and write, and an
// ownership pre-filter on listings for non-privileged callers.
type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(repo Repository, notifier Notifier, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("tasks: repository is required")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &Service{repo: repo, notifier: notifier, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns every task for ADMIN/MANAGER callers and only the caller's own
// tasks otherwise. Forgetting this pre-filter would leak all rows to
// non-privileged callers, so it lives here rather than in handlers.
func (s *Service) List(ctx context.Context) ([]*Task, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, auth.ErrAccessDenied
	}
	if auth.CanListAll(principal) {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListByOwner(ctx, principal.ID())
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, auth.ErrAccessDenied
	}
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccess(principal, task.OwnerID) {
		return nil, auth.ErrAccessDenied
	}
	return task, nil
}

func (s *Service) Add(ctx context.Context, name, description string, completed bool) (*Task, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, auth.ErrAccessDenied
	}
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	task := &Task{
		ID:          uuid.New(),
		OwnerID:     principal.ID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Completed:   completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Save(ctx, task); err != nil {
		return nil, err
	}
	s.notifier.TaskChanged(ctx, Event{Task: *task, Status: StatusNew, Timestamp: now})
	return task, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, name, description string, completed bool) (*Task, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, auth.ErrAccessDenied
	}
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccess(principal, task.OwnerID) {
		return nil, auth.ErrAccessDenied
	}
	task.Name = name
	task.Description = strings.TrimSpace(description)
	task.Completed = completed
	task.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.notifier.TaskChanged(ctx, Event{Task: *task, Status: StatusUpdated, Timestamp: task.UpdatedAt})
	return task, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.ErrAccessDenied
	}
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanAccess(principal, task.OwnerID) {
		return auth.ErrAccessDenied
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.TaskChanged(ctx, Event{Task: *task, Status: StatusDeleted, Timestamp: s.now().UTC()})
	return nil
}

func validateName(name string) error {
	// Bounds are in characters, not bytes.
	if n := utf8.RuneCountInString(name); n < 5 || n > 255 {
		return ErrInvalidName
	}
	return nil
}
