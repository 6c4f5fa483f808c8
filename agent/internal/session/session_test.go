package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/agent/internal/apiclient"
)

func TestBrokerURLTCP(t *testing.T) {
	got := brokerURL(&apiclient.BrokerCredentials{Host: "broker.internal", Port: 1883})
	if want := "tcp://broker.internal:1883"; got != want {
		t.Errorf("brokerURL() = %q, want %q", got, want)
	}
}

func TestBrokerURLWebSocket(t *testing.T) {
	got := brokerURL(&apiclient.BrokerCredentials{Host: "broker.internal", Port: websocketPort})
	if want := "ws://broker.internal:9001"; got != want {
		t.Errorf("brokerURL() = %q, want %q", got, want)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	cases := map[string]time.Duration{
		"ReconnectDelay":              cfg.ReconnectDelay,
		"ConnectTimeout":              cfg.ConnectTimeout,
		"PublishInterval":             cfg.PublishInterval,
		"SystemInfoCheckInterval":     cfg.SystemInfoCheckInterval,
		"SystemInfoRepublishInterval": cfg.SystemInfoRepublishInterval,
		"ExchangeInterval":            cfg.ExchangeInterval,
	}
	for name, got := range cases {
		if got == 0 {
			t.Errorf("applyDefaults() left %s at zero", name)
		}
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay default = %v, want 3s", cfg.ReconnectDelay)
	}
	if cfg.ExchangeInterval != 15*time.Minute {
		t.Errorf("ExchangeInterval default = %v, want 15m", cfg.ExchangeInterval)
	}
}

func TestConfigApplyDefaultsPreservesSetValues(t *testing.T) {
	cfg := Config{PublishInterval: 42 * time.Second}
	cfg.applyDefaults()
	if cfg.PublishInterval != 42*time.Second {
		t.Errorf("applyDefaults() overwrote an explicitly set interval: got %v", cfg.PublishInterval)
	}
}

func newTestRunner(t *testing.T, handler http.HandlerFunc) *Runner {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	r := New(Config{
		APIBaseURL: server.URL,
		NodeID:     "node-1",
		NodeToken:  "token-1",
		Logger:     zap.NewNop(),
	})
	return r
}

func brokerResponse(host string, port int, username, password string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"mqtt": map[string]any{
				"host":     host,
				"port":     port,
				"username": username,
				"password": password,
			},
		})
	}
}

func TestCheckExchangeUnchanged(t *testing.T) {
	r := newTestRunner(t, brokerResponse("broker.internal", 1883, "node-1", "same-password"))

	current := &apiclient.BrokerCredentials{Host: "broker.internal", Port: 1883, Username: "node-1", Password: "same-password"}
	next, changed, err := r.checkExchange(context.Background(), current)
	if err != nil {
		t.Fatalf("checkExchange() error = %v", err)
	}
	if changed {
		t.Errorf("checkExchange() changed = true, want false for an identical tuple; next = %+v", next)
	}
}

func TestCheckExchangeRotated(t *testing.T) {
	r := newTestRunner(t, brokerResponse("broker.internal", 1883, "node-1", "new-password"))

	current := &apiclient.BrokerCredentials{Host: "broker.internal", Port: 1883, Username: "node-1", Password: "old-password"}
	next, changed, err := r.checkExchange(context.Background(), current)
	if err != nil {
		t.Fatalf("checkExchange() error = %v", err)
	}
	if !changed {
		t.Fatal("checkExchange() changed = false, want true for a byte-different password")
	}
	if next.Password != "new-password" {
		t.Errorf("checkExchange() next.Password = %q, want %q", next.Password, "new-password")
	}
}
