package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"session-auth/internal/audit/domain"
	auditrepo "session-auth/internal/audit/repository"
)

// Audit actions written by the session manager.
const (
	ActionRegister       = "register"
	ActionLoginSuccess   = "login_success"
	ActionLoginFailure   = "login_failure"
	ActionFederatedLogin = "federated_login"
	ActionRefresh        = "refresh"
	ActionRefreshReuse   = "refresh_reuse"
	ActionLogout         = "logout"
)

// ResourceSession is the resource recorded for session lifecycle events.
const ResourceSession = "session"

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, device string, metadata map[string]string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. ipExtractor may be nil;
// otherwise the client IP is added to the metadata under "ip".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, device string, metadata map[string]string) {
	if l == nil || l.repo == nil {
		return
	}
	if l.ipExtractor != nil {
		if ip := l.ipExtractor(ctx); ip != "" {
			m := make(map[string]string, len(metadata)+1)
			for k, v := range metadata {
				m[k] = v
			}
			m["ip"] = ip
			metadata = m
		}
	}
	meta := "{}"
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			meta = string(b)
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Device:    device,
		Metadata:  meta,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", action).Str("resource", resource).Msg("audit: failed to log event")
	}
}
