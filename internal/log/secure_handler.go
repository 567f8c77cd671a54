package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys whose values are never logged.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,

	// Credentials
	"token":            true,
	"access_token":     true,
	"github_token":     true,
	"password":         true,
	"passwd":           true,
	"secret":           true,
	"credential":       true,
	"credentials":      true,
	"auth":             true,
	"control_password": true,
	"controlpassword":  true,
	"cookie_file_data": true,
}

// sensitivePatterns contains value patterns that are masked regardless of the key.
var sensitivePatterns = []*regexp.Regexp{
	// GitHub classic personal access, OAuth, user-to-server, server-to-server and refresh tokens
	regexp.MustCompile(`^gh[pousr]_[A-Za-z0-9]{20,}$`),

	// GitHub fine-grained personal access tokens
	regexp.MustCompile(`^github_pat_[A-Za-z0-9_]{20,}$`),

	// Bearer and token authorization header values
	regexp.MustCompile(`(?i)^(bearer|token)\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// JWT
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Tor control cookies are 32 bytes, hex encoded. 40-char git blob SHAs
	// stay readable.
	regexp.MustCompile(`^[a-fA-F0-9]{64}$`),

	// Tor control AUTHENTICATE command lines
	regexp.MustCompile(`(?i)^authenticate\s+\S+`),
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and masks sensitive attribute values
// before they reach the underlying handler.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled reports whether the underlying handler handles records at level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given (sanitized) attributes added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

// sanitizeAttr masks a single attribute, recursing into groups.
func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if sensitiveKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() == slog.KindString && isSensitiveValue(a.Value.String()) {
		return slog.String(a.Key, MaskValue)
	}

	return a
}

// containsSensitiveKeyword checks if the key contains a sensitive keyword.
// The bare word "key" is excluded on purpose: "primary_key" or "cache_key"
// are not secrets.
func containsSensitiveKeyword(key string) bool {
	sensitiveKeywords := []string{
		"password", "passwd", "secret", "token", "credential", "authorization", "cookie",
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// isSensitiveValue checks if a value matches one of the sensitive patterns.
func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// levelFor maps the verbose flag onto a minimum log level.
func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// NewSecureLogger creates a text slog.Logger that sanitizes all output.
// Verbose lowers the level from Info to Debug.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(verbose)}
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, opts)))
}

// NewSecureJSONLogger creates a JSON slog.Logger that sanitizes all output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(verbose)}
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, opts)))
}

// Discard returns a logger that drops every record.
// Components fall back to it when no logger is injected.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
