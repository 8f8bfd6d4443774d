package authcore

import (
	"context"
	"time"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginLocked        = "login_locked"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventRefreshMismatch    = "refresh_token_mismatch"
	auditEventLogout             = "logout"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventDegraded           = "degraded_mode"
)

// emitAudit hands an event to the dispatcher. metadataBuilder runs only when
// auditing is on, so callers can build maps freely.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		SessionID:   sessionID,
		IP:          ClientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if err != nil {
		event.Error = string(KindOf(err))
	}

	e.audit.Emit(ctx, event)
}

// deviceMetadata describes the caller's client for login events. extra is
// merged on top.
func (e *Engine) deviceMetadata(ctx context.Context, extra map[string]string) map[string]string {
	var md map[string]string
	if e.enricher != nil {
		md = e.enricher.Metadata(ClientIPFromContext(ctx), userAgentFromContext(ctx))
	}
	if md == nil {
		md = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		md[k] = v
	}
	return md
}
