package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models. ID uses UUID v7
// (time-ordered) so that ordering by ID already matches creation order
// without a secondary sort column, and so IDs sort lexicographically as
// plain strings. CreatedAt and UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// Nodes & telemetry
// -----------------------------------------------------------------------------

// Node is a registered agent endpoint. AuthTokenHash is the SHA-256 hash of
// the long-lived bearer handed to the node at creation time — the plaintext
// is shown exactly once and never persisted.
type Node struct {
	base
	Name          string `gorm:"default:''"`
	LastSeenAt    time.Time
	AuthTokenHash string `gorm:"uniqueIndex"`

	// MQTTUsername/MQTTPasswordHash/MQTTPasswordExpiresAt reserve space for a
	// future per-node broker credential, not yet populated or read by
	// ExchangeNodeToken — today every node is handed the same shared broker
	// coordinates configured on the server.
	MQTTUsername          string `gorm:"default:''"`
	MQTTPasswordHash      string `gorm:"default:''"`
	MQTTPasswordExpiresAt *time.Time
}

// Metric is a single append-only telemetry sample. Rows are never updated or
// deleted individually — only cascaded when their Node is deleted.
type Metric struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	NodeID    uuid.UUID `gorm:"type:text;not null;index:idx_metric_node_ts"`
	CreatedAt time.Time `gorm:"not null"`
	TS        time.Time `gorm:"not null;index:idx_metric_node_ts"`
	CPU       float64   `gorm:"not null"`
	MemUsed   float64   `gorm:"not null"`
	MemTotal  float64   `gorm:"not null"`
	DiskUsed  float64   `gorm:"not null"`
	DiskTotal float64   `gorm:"not null"`
	NetRx     float64   `gorm:"not null"`
	NetTx     float64   `gorm:"not null"`
}

// NodeSystemInfo is the slow-changing inventory snapshot for a Node, upserted
// only when its Hash changes or the freshness window elapses. Payload holds
// the raw info JSON exactly as received, for forwarding to the roster view.
type NodeSystemInfo struct {
	NodeID     uuid.UUID `gorm:"type:text;primaryKey"`
	Hash       string    `gorm:"not null"`
	Payload    string    `gorm:"type:text;not null"` // JSON — the info object
	ReportedTS time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// User is a human account. PasswordHash is empty for a "shell" user — an
// account that exists (for role assignment, e.g. the bootstrap admin) but
// has never completed setup.
type User struct {
	base
	Email            string `gorm:"not null"`
	EmailNormalized  string `gorm:"uniqueIndex;not null"`
	PasswordHash     string `gorm:"default:''"`
	EmailVerifiedAt  *time.Time
	IsDisabled       bool `gorm:"not null;default:false"`
	FailedLoginCount int  `gorm:"not null;default:0"`
	LockedUntil      *time.Time
	LastLoginAt      *time.Time
	LastLoginIP      string `gorm:"default:''"`
	DisplayName      string `gorm:"default:''"`
}

// Role is a named bundle of Permissions. Names are lowercase and match
// ^[a-z][a-z0-9:_-]*$; "admin" and "user" are reserved seed roles.
type Role struct {
	base
	Name string `gorm:"uniqueIndex;not null"`
}

// Permission is a single named capability. Codes are either static (seeded
// at startup) or dynamic per-node codes auto-provisioned on first reference.
type Permission struct {
	base
	Code        string `gorm:"uniqueIndex;not null"`
	Description string `gorm:"default:''"`
}

// UserRole is the User<->Role join. Composite primary key — a user holds a
// role at most once.
type UserRole struct {
	UserID uuid.UUID `gorm:"type:text;primaryKey"`
	RoleID uuid.UUID `gorm:"type:text;primaryKey"`
}

// RolePermission is the Role<->Permission join.
type RolePermission struct {
	RoleID       uuid.UUID `gorm:"type:text;primaryKey"`
	PermissionID uuid.UUID `gorm:"type:text;primaryKey"`
}

// Session is a logged-in user's bearer. Active iff RevokedAt is nil and
// ExpiresAt is in the future — both conditions are re-checked on every use,
// never cached.
type Session struct {
	base
	UserID     uuid.UUID `gorm:"type:text;not null;index"`
	TokenHash  string    `gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	RevokedAt  *time.Time
	LastSeenAt *time.Time
	IP         string `gorm:"default:''"`
	UserAgent  string `gorm:"default:''"`
}

// AuthTokenType distinguishes the purposes a single-use AuthToken row can
// serve. Bootstrap claim tokens are RESET_PASSWORD tokens whose Metadata
// carries a bootstrapToken marker — there is no separate DB type for them.
type AuthTokenType string

const (
	AuthTokenVerifyEmail   AuthTokenType = "VERIFY_EMAIL"
	AuthTokenResetPassword AuthTokenType = "RESET_PASSWORD"
	AuthTokenChangeEmail   AuthTokenType = "CHANGE_EMAIL"
)

// AuthToken is a single-use, hashed, expiring token used for setup/reset and
// bootstrap claim flows. Metadata is free-form JSON (e.g.
// {"bootstrapToken": true}).
type AuthToken struct {
	base
	UserID     uuid.UUID     `gorm:"type:text;not null;index"`
	Type       AuthTokenType `gorm:"not null"`
	TokenHash  string        `gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time     `gorm:"not null"`
	ConsumedAt *time.Time
	Metadata   string `gorm:"type:text;default:''"`
}

// AuditLog is an append-only record of security-relevant events. UserID is
// nulled, not cascaded, when the referenced user is deleted.
type AuditLog struct {
	base
	UserID    *uuid.UUID `gorm:"type:text;index"`
	Action    string     `gorm:"not null"`
	IP        string     `gorm:"default:''"`
	UserAgent string     `gorm:"default:''"`
	Details   string     `gorm:"type:text;default:''"`
}
