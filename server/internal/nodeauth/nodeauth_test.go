package nodeauth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	gormDB, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      "file:" + t.Name() + "?mode=memory&cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	store := repositories.New(gormDB)
	broker := BrokerConfig{Host: "broker.internal", Port: 1883, Username: "agents", Password: "s3cret"}
	return New(store, zap.NewNop(), broker)
}

func TestCreateNodeAndExchange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateNode(ctx, "web-1", nil, "")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	if created.TokenPlaintext == "" {
		t.Fatal("CreateNode() returned an empty token plaintext")
	}

	creds, err := svc.ExchangeNodeToken(ctx, created.Node.ID.String(), created.TokenPlaintext)
	if err != nil {
		t.Fatalf("ExchangeNodeToken() error = %v", err)
	}
	if creds.Host != "broker.internal" || creds.Port != 1883 || creds.Username != "agents" || creds.Password != "s3cret" {
		t.Errorf("ExchangeNodeToken() = %+v, want the configured broker coordinates", creds)
	}
	if creds.ExpiresAt != nil {
		t.Error("ExchangeNodeToken() ExpiresAt should be nil in this version")
	}
}

func TestExchangeNodeTokenWrongToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateNode(ctx, "web-2", nil, "")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}

	if _, err := svc.ExchangeNodeToken(ctx, created.Node.ID.String(), "not-the-right-token"); err != ErrInvalidToken {
		t.Errorf("ExchangeNodeToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestExchangeNodeTokenUnknownNode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ExchangeNodeToken(ctx, "00000000-0000-0000-0000-000000000000", "whatever"); err != ErrInvalidToken {
		t.Errorf("ExchangeNodeToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestExchangeNodeTokenMalformedID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ExchangeNodeToken(ctx, "not-a-uuid", "whatever"); err != ErrInvalidToken {
		t.Errorf("ExchangeNodeToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestDeleteNodeRecordsAudit(t *testing.T) {
	gormDB, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      "file:" + t.Name() + "?mode=memory&cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	store := repositories.New(gormDB)
	svc := New(store, zap.NewNop(), BrokerConfig{Host: "broker.internal", Port: 1883, Username: "agents", Password: "s3cret"})
	ctx := context.Background()

	actor := uuid.New()
	created, err := svc.CreateNode(ctx, "to-delete", &actor, "203.0.113.5")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}

	if err := svc.DeleteNode(ctx, created.Node.ID, &actor, "203.0.113.5"); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}

	var logs []db.AuditLog
	if err := gormDB.Where("action IN ?", []string{"NODE_CREATED", "NODE_DELETED"}).Find(&logs).Error; err != nil {
		t.Fatalf("querying audit logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d audit rows, want 2 (NODE_CREATED + NODE_DELETED)", len(logs))
	}
}

func TestCreateNodeProvisionsPermissionCodes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateNode(ctx, "web-3", nil, "")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}

	perms, err := svc.store.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions() error = %v", err)
	}

	wantRead := "node:read:" + created.Node.ID.String()
	wantWrite := "node:write:" + created.Node.ID.String()
	var haveRead, haveWrite bool
	for _, p := range perms {
		if p.Code == wantRead {
			haveRead = true
		}
		if p.Code == wantWrite {
			haveWrite = true
		}
	}
	if !haveRead || !haveWrite {
		t.Errorf("CreateNode() did not provision both permission codes: read=%v write=%v", haveRead, haveWrite)
	}
}
