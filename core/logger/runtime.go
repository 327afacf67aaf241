package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID    contextKey = "rid"
	ctxUserID contextKey = "user_id"
	ctxChatID contextKey = "chat_id"
	ctxLogger contextKey = "logger"
)

// WithLogger stores a slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts the slog.Logger from context or returns the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok {
		return l
	}
	return L
}

// WithRID attaches a request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts the rid from context if present.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxRID).(string); ok {
		return s
	}
	return ""
}

// WithUpdateMeta attaches user and chat identifiers to context.
func WithUpdateMeta(ctx context.Context, userID, chatID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxChatID, chatID)
	return ctx
}

// BuildRID derives a compact correlation id from update metadata.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("u%d-c%d-s%d", updateID, chatID, userID)
}

// ContextAttrs collects the identifiers stored in ctx as slog attributes.
func ContextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs := make([]slog.Attr, 0, 3)
	if rid := RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if id, ok := ctx.Value(ctxUserID).(int64); ok && id != 0 {
		attrs = append(attrs, slog.Int64("user_id", id))
	}
	if id, ok := ctx.Value(ctxChatID).(int64); ok && id != 0 {
		attrs = append(attrs, slog.Int64("chat_id", id))
	}
	return attrs
}
