package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/vial-compliance-api/internal/models"
)

// AuditWriter persists audit rows.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RequestInfo carries caller network details into audit rows.
type RequestInfo struct {
	IP        string
	UserAgent string
}

type requestInfoKey struct{}

// WithRequestInfo attaches request details to ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the details stored by WithRequestInfo, if any.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}

// auditTrail writes audit rows best-effort: failures are logged, never returned.
type auditTrail struct {
	writer AuditWriter
	logger *zap.Logger
}

func (a auditTrail) record(ctx context.Context, actor Actor, action, resource, resourceID string, oldValues, newValues interface{}) {
	if a.writer == nil {
		return
	}
	info := RequestInfoFrom(ctx)
	entry := &models.AuditLog{
		UserID:    actor.userIDPtr(),
		Action:    action,
		Resource:  resource,
		OldValues: marshalAudit(oldValues),
		NewValues: marshalAudit(newValues),
		IPAddress: info.IP,
		UserAgent: info.UserAgent,
	}
	if resourceID != "" {
		id := resourceID
		entry.ResourceID = &id
	}
	if err := a.writer.CreateAuditLog(ctx, entry); err != nil && a.logger != nil {
		a.logger.Warn("audit write failed",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err))
	}
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
