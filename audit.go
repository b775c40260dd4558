package hostauth

import (
	"context"
	"io"

	"github.com/MrEthical07/hostauth/internal/audit"
	"github.com/rs/zerolog"
)

// AuditEvent is one authentication event delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

const (
	AuditEventSignUp          = "sign_up"
	AuditEventSignIn          = "sign_in"
	AuditEventSignOut         = "sign_out"
	AuditEventSessionsRevoked = "sessions_revoked"
	AuditEventSessionExpired  = "session_expired"
	AuditEventTokenIssued     = "token_issued"
)

// NewChannelSink returns a sink that buffers events on a channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink returns a sink that writes events through logger.
func NewLogSink(logger zerolog.Logger) *audit.LogSink {
	return audit.NewLogSink(logger)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, sessionID string, err error) {
	if e.audit == nil {
		return
	}
	ev := AuditEvent{
		Type:      eventType,
		Instance:  e.options.Advanced.CookiePrefix,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.audit.Emit(ctx, ev)
}
