package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"taskhub.org/internal/auth"
)

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "", nil); err == nil {
		t.Fatal("empty event name must be rejected")
	}
	if err := LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatal("blank event name must be rejected")
	}
}

func TestLogEventWithContext(t *testing.T) {
	principal := auth.NewLocalPrincipal(&auth.User{
		ID:       uuid.New(),
		Username: "alice",
		Roles:    []auth.Role{auth.RoleUser},
	})
	ctx := auth.ContextWithPrincipal(context.Background(), principal)
	ctx = WithRequestID(ctx, "req-123")

	if err := LogEvent(ctx, "auth.signin", map[string]any{"detail": "ok"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	// Bare context works too; enrichment is best effort.
	if err := LogEvent(context.Background(), "auth.signin", nil); err != nil {
		t.Fatalf("LogEvent bare context: %v", err)
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	if got := WithRequestID(ctx, ""); got != ctx {
		t.Fatal("empty request id should leave the context untouched")
	}
	enriched := WithRequestID(ctx, "req-1")
	if got := requestIDFromContext(enriched); got != "req-1" {
		t.Fatalf("request id = %q, want req-1", got)
	}
	if got := requestIDFromContext(ctx); got != "" {
		t.Fatalf("request id leaked into parent: %q", got)
	}
}
