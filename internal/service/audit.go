package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
)

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes audit entries. Failures are logged and never returned.
type auditTrail struct {
	repo   auditRepository
	logger *zap.Logger
}

func (a auditTrail) record(ctx context.Context, actorID, action, resource, resourceID string, meta models.RequestMeta, values map[string]interface{}) {
	if a.repo == nil {
		return
	}
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if len(values) > 0 {
		if raw, err := json.Marshal(values); err == nil {
			entry.NewValues = string(raw)
		}
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		a.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
