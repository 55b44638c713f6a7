package correlation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Header is the HTTP header that carries the correlation ID in both directions.
const Header = "X-Correlation-ID"

const maxInboundIDLength = 64

type contextKey struct{}

// NewID generates a random UUIDv4 correlation ID.
func NewID() string {
	return uuid.NewString()
}

// FromInbound returns the caller-supplied ID when it is usable, otherwise a fresh one.
func FromInbound(inbound string) string {
	if inbound == "" || len(inbound) > maxInboundIDLength {
		return NewID()
	}
	for _, r := range inbound {
		if !isIDRune(r) {
			return NewID()
		}
	}
	return inbound
}

func isIDRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z')
}

// WithID returns a new context carrying the given correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Handler wraps an existing slog.Handler to automatically inject a
// "correlation_id" attribute when the context carries one.
type Handler struct {
	inner slog.Handler
}

// NewHandler creates a correlation-aware handler wrapping the given handler.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
