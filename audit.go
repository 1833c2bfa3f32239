package authguard

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine.
const (
	AuditLoginSuccess        = "login.success"
	AuditLoginFailure        = "login.failure"
	AuditLoginBlocked        = "login.blocked"
	AuditSecondFactorFailure = "login.second_factor_failure"
	AuditRefreshSuccess      = "refresh.success"
	AuditRefreshFailure      = "refresh.failure"
	AuditTokenRevoked        = "token.revoked"
	AuditLogout              = "logout"
	AuditTwoFactorInitiated  = "twofactor.initiated"
	AuditTwoFactorEnabled    = "twofactor.enabled"
	AuditTwoFactorDisabled   = "twofactor.disabled"
	AuditBackupCodeUsed      = "twofactor.backup_code_used"
	AuditBackupCodesRotated  = "twofactor.backup_codes_rotated"
)

// AuditEvent is one security-relevant occurrence inside the engine.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	UserID     string            `json:"user_id,omitempty"`
	Identifier string            `json:"identifier,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives engine audit events. Emit must be safe for concurrent
// use and should return promptly; slow sinks are decoupled from request
// latency by the engine's dispatcher, but a sink that blocks forever will
// eventually fill the buffer.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for consumption by the
// caller's own pipeline.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to the wrapped writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
