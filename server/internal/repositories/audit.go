package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
)

// RecordAudit appends an AuditLog row. userID may be nil for events with no
// authenticated actor (e.g. a failed login against an unknown email).
func (s *Store) RecordAudit(ctx context.Context, userID *uuid.UUID, action, ip, userAgent, details string) error {
	entry := &db.AuditLog{
		UserID:    userID,
		Action:    action,
		IP:        ip,
		UserAgent: userAgent,
		Details:   details,
	}
	return s.db.WithContext(ctx).Create(entry).Error
}
