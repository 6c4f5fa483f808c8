package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
)

const maxRecentMetrics = 300

// NodeWithStats is the per-node projection ListNodesWithStats returns: the
// node's identity joined with its publish bookkeeping and the two latest
// observations, exactly the shape a roster snapshot needs.
type NodeWithStats struct {
	Node            db.Node
	PublishCount    int64
	LastPublishAt   *time.Time
	LatestMetric    *db.Metric
	SystemInfo      *db.NodeSystemInfo
}

// ListNodesWithStats returns every node ordered by CreatedAt descending,
// each joined with its metric count, most recent metric, and system info.
func (s *Store) ListNodesWithStats(ctx context.Context) ([]NodeWithStats, error) {
	var nodes []db.Node
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&nodes).Error; err != nil {
		return nil, err
	}

	out := make([]NodeWithStats, 0, len(nodes))
	for _, n := range nodes {
		stat := NodeWithStats{Node: n}

		var count int64
		if err := s.db.WithContext(ctx).Model(&db.Metric{}).Where("node_id = ?", n.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		stat.PublishCount = count

		var latest db.Metric
		err := s.db.WithContext(ctx).Where("node_id = ?", n.ID).Order("ts DESC").First(&latest).Error
		switch {
		case err == nil:
			stat.LatestMetric = &latest
			t := latest.TS
			stat.LastPublishAt = &t
		case errors.Is(err, gorm.ErrRecordNotFound):
			// no metrics yet
		default:
			return nil, err
		}

		var info db.NodeSystemInfo
		err = s.db.WithContext(ctx).Where("node_id = ?", n.ID).First(&info).Error
		switch {
		case err == nil:
			stat.SystemInfo = &info
		case errors.Is(err, gorm.ErrRecordNotFound):
			// no inventory yet
		default:
			return nil, err
		}

		out = append(out, stat)
	}

	return out, nil
}

// FindNodeById returns the node with the given ID, including AuthTokenHash.
func (s *Store) FindNodeById(ctx context.Context, id uuid.UUID) (*db.Node, error) {
	var n db.Node
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// CreateNode inserts a new node with the given name and pre-hashed bearer
// token. The caller is responsible for minting the plaintext and hashing it
// before calling this — Store never sees plaintext secrets.
func (s *Store) CreateNode(ctx context.Context, name, authTokenHash string) (*db.Node, error) {
	n := &db.Node{
		Name:          name,
		AuthTokenHash: authTokenHash,
		LastSeenAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return n, nil
}

// DeleteNodeById removes a node and cascades its Metrics and NodeSystemInfo.
func (s *Store) DeleteNodeById(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&db.Node{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("node_id = ?", id).Delete(&db.Metric{}).Error; err != nil {
			return err
		}
		return tx.Where("node_id = ?", id).Delete(&db.NodeSystemInfo{}).Error
	})
}

// UpdateNodeName renames a node.
func (s *Store) UpdateNodeName(ctx context.Context, id uuid.UUID, name string) (*db.Node, error) {
	res := s.db.WithContext(ctx).Model(&db.Node{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindNodeById(ctx, id)
}

// AppendMetric inserts one metric row and advances the node's LastSeenAt in
// the same transaction. If the node does not exist the call fails with
// ErrNotFound and nothing is written, so the caller (Ingest) can log and
// drop.
func (s *Store) AppendMetric(ctx context.Context, nodeID uuid.UUID, m db.Metric) error {
	m.NodeID = nodeID
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return translateFKViolation(err)
		}
		return touchNodeLastSeen(tx, nodeID, m.TS)
	})
}

// ListRecentMetrics returns the most recent rows for a node, oldest-first,
// clamped to [1, 300] regardless of the requested limit.
func (s *Store) ListRecentMetrics(ctx context.Context, nodeID uuid.UUID, limit int) ([]db.Metric, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxRecentMetrics {
		limit = maxRecentMetrics
	}

	var rows []db.Metric
	if err := s.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("ts DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	// reverse into oldest-first order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// UpsertSystemInfoResult reports whether UpsertSystemInfo actually rewrote
// the stored payload, so Ingest knows whether to signal a roster change.
type UpsertSystemInfoResult struct {
	Changed bool
}

// UpsertSystemInfo stores a node's inventory payload. If hash matches the
// currently stored hash, only LastSeenAt is bumped (no rewrite). Otherwise
// the row is upserted and LastSeenAt bumped, atomically.
func (s *Store) UpsertSystemInfo(ctx context.Context, nodeID uuid.UUID, hash, payload string, reportedTS time.Time) (UpsertSystemInfoResult, error) {
	var result UpsertSystemInfoResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.NodeSystemInfo
		err := tx.Where("node_id = ?", nodeID).First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			info := db.NodeSystemInfo{
				NodeID:     nodeID,
				Hash:       hash,
				Payload:    payload,
				ReportedTS: reportedTS,
				UpdatedAt:  time.Now().UTC(),
			}
			if err := tx.Create(&info).Error; err != nil {
				return translateFKViolation(err)
			}
			result.Changed = true

		case err != nil:
			return err

		case existing.Hash == hash:
			result.Changed = false

		default:
			existing.Hash = hash
			existing.Payload = payload
			existing.ReportedTS = reportedTS
			existing.UpdatedAt = time.Now().UTC()
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			result.Changed = true
		}

		return touchNodeLastSeen(tx, nodeID, reportedTS)
	})

	return result, err
}

// touchNodeLastSeen advances a node's LastSeenAt if the new timestamp is
// later than what's stored, enforcing the invariant that LastSeenAt never
// regresses below the latest metric/system-info activity.
func touchNodeLastSeen(tx *gorm.DB, nodeID uuid.UUID, at time.Time) error {
	res := tx.Model(&db.Node{}).
		Where("id = ? AND last_seen_at < ?", nodeID, at).
		Update("last_seen_at", at)
	if res.Error != nil {
		return res.Error
	}
	// RowsAffected == 0 can mean either "already newer" (fine) or "node
	// missing". SQLite does not enforce the foreign key on the insert above
	// unless foreign_keys is enabled, so check for the node explicitly.
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&db.Node{}).Where("id = ?", nodeID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// translateFKViolation maps a foreign-key constraint failure to
// ErrNotFound, the signal Ingest uses to log-and-drop a message referencing
// a node that no longer exists.
func translateFKViolation(err error) error {
	if err == nil {
		return nil
	}
	// SQLite and PostgreSQL both include "FOREIGN KEY" (sqlite) or
	// "foreign key constraint" (postgres) in the error text.
	msg := err.Error()
	if strings.Contains(msg, "FOREIGN KEY") || strings.Contains(msg, "foreign key constraint") {
		return ErrNotFound
	}
	return err
}

// HashNodeToken returns the SHA-256 hex digest of a node bearer plaintext.
func HashNodeToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
