// Package session runs the agent's outer connect/publish loop: acquire
// broker credentials from the server, hold an MQTT session against the
// broker, and publish metrics and inventory on fixed intervals until the
// session drops or credentials rotate, then reconnect. The structure
// mirrors the reconnect/backoff discipline of a long-lived connection
// manager, adapted from gRPC heartbeat/job-stream loops to MQTT
// publish/check/exchange ticks.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/agent/internal/apiclient"
	"github.com/GustavPetterssonBjorklund/Statix/agent/internal/collector"
	"github.com/GustavPetterssonBjorklund/Statix/shared/stablehash"
	"github.com/GustavPetterssonBjorklund/Statix/shared/wire"
)

// websocketPort is the broker port that signals the client should speak
// MQTT over WebSockets rather than raw TCP.
const websocketPort = 9001

// Config holds every parameter the session loop needs. Interval/timeout
// fields default to the values below when left at zero, matching the
// external interface's documented defaults.
type Config struct {
	APIBaseURL string
	NodeID     string
	NodeToken  string

	AgentVersion string
	AgentCommit  string
	AgentBuiltAt string

	ReconnectDelay              time.Duration // default 3s
	ConnectTimeout              time.Duration // default 8s
	PublishInterval             time.Duration // default 5s
	SystemInfoCheckInterval     time.Duration // default 10m
	SystemInfoRepublishInterval time.Duration // default 24h
	ExchangeInterval            time.Duration // default 15m

	Logger *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 8 * time.Second
	}
	if c.PublishInterval == 0 {
		c.PublishInterval = 5 * time.Second
	}
	if c.SystemInfoCheckInterval == 0 {
		c.SystemInfoCheckInterval = 10 * time.Minute
	}
	if c.SystemInfoRepublishInterval == 0 {
		c.SystemInfoRepublishInterval = 24 * time.Hour
	}
	if c.ExchangeInterval == 0 {
		c.ExchangeInterval = 15 * time.Minute
	}
}

// Runner drives the outer reconnect loop described in Config.
type Runner struct {
	cfg    Config
	api    *apiclient.Client
	logger *zap.Logger

	nodeToken string // the node bearer; never rotates, unlike the broker creds
}

// New constructs a Runner. Call Run to start the loop; it blocks until ctx
// is cancelled.
func New(cfg Config) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:       cfg,
		api:       apiclient.New(cfg.APIBaseURL, cfg.ConnectTimeout),
		logger:    cfg.Logger.Named("session"),
		nodeToken: cfg.NodeToken,
	}
}

// Run is the outer loop: acquire credentials, run one session to
// completion, sleep, repeat. It returns only once ctx is cancelled — every
// other failure is logged and retried, since there is no caller left to
// report to once the agent is running unattended.
func (r *Runner) Run(ctx context.Context) {
	var pending *apiclient.BrokerCredentials // rotateTo: next session's starting creds, if already known

	for {
		if ctx.Err() != nil {
			r.logger.Info("session runner stopped")
			return
		}

		creds := pending
		pending = nil
		if creds == nil {
			acquired, err := r.acquireCredentials(ctx)
			if err != nil {
				r.logger.Warn("credential exchange failed, retrying", zap.Error(err))
				if !r.sleep(ctx, r.cfg.ReconnectDelay) {
					return
				}
				continue
			}
			creds = acquired
		}

		rotateTo, err := r.runSession(ctx, creds)
		if err != nil {
			r.logger.Warn("session ended, reconnecting", zap.Error(err))
		}
		pending = rotateTo

		if !r.sleep(ctx, r.cfg.ReconnectDelay) {
			return
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (r *Runner) acquireCredentials(ctx context.Context) (*apiclient.BrokerCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()
	return r.api.ExchangeNodeToken(ctx, r.cfg.NodeID, r.nodeToken)
}

// runSession connects to the broker with creds and runs the publish/check/
// exchange schedule until the connection drops, ctx is cancelled, or the
// credentials rotate. On rotation it returns the next session's starting
// credentials so Run can skip the redundant exchange round-trip.
func (r *Runner) runSession(ctx context.Context, creds *apiclient.BrokerCredentials) (*apiclient.BrokerCredentials, error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL(creds)).
		SetClientID("statix-agent-" + r.cfg.NodeID).
		SetUsername(creds.Username).
		SetPassword(creds.Password).
		SetAutoReconnect(false).
		SetConnectTimeout(r.cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			r.logger.Warn("broker connection lost", zap.Error(err))
			cancel()
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(r.cfg.ConnectTimeout) {
		return nil, fmt.Errorf("session: connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("session: connect failed: %w", err)
	}
	defer client.Disconnect(250)

	r.logger.Info("connected to broker", zap.String("broker", brokerURL(creds)))

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("session: building scheduler: %w", err)
	}
	defer func() { _ = sched.Shutdown() }()

	var publishing sync.Mutex
	info := &systemInfoState{}
	var rotateTo *apiclient.BrokerCredentials

	if _, err := sched.NewJob(
		gocron.DurationJob(r.cfg.PublishInterval),
		gocron.NewTask(func() {
			if !publishing.TryLock() {
				return // previous publish still outstanding; skip this tick
			}
			defer publishing.Unlock()
			r.publishMetrics(sessionCtx, client)
		}),
	); err != nil {
		return nil, fmt.Errorf("session: scheduling metrics publish: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(r.cfg.SystemInfoCheckInterval),
		gocron.NewTask(func() {
			r.maybePublishSystemInfo(sessionCtx, client, info)
		}),
	); err != nil {
		return nil, fmt.Errorf("session: scheduling system info check: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(r.cfg.ExchangeInterval),
		gocron.NewTask(func() {
			next, changed, err := r.checkExchange(sessionCtx, creds)
			if err != nil {
				r.logger.Warn("credential re-exchange failed", zap.Error(err))
				return
			}
			if changed {
				rotateTo = next
				cancel()
			}
		}),
	); err != nil {
		return nil, fmt.Errorf("session: scheduling credential exchange: %w", err)
	}

	// Publish an initial inventory sample immediately, then let the
	// scheduled check loop take over for subsequent ticks.
	r.maybePublishSystemInfo(sessionCtx, client, info)
	r.publishMetrics(sessionCtx, client)

	sched.Start()

	<-sessionCtx.Done()

	if ctx.Err() != nil {
		return nil, nil
	}
	return rotateTo, sessionCtx.Err()
}

func (r *Runner) publishMetrics(ctx context.Context, client mqtt.Client) {
	payload, err := collector.Metrics(ctx)
	if err != nil {
		r.logger.Warn("collecting metrics failed", zap.Error(err))
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("encoding metrics payload failed", zap.Error(err))
		return
	}

	token := client.Publish(wire.MetricsTopic(r.cfg.NodeID), 1, false, body)
	if !token.WaitTimeout(r.cfg.ConnectTimeout) {
		r.logger.Warn("metrics publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		r.logger.Warn("metrics publish failed", zap.Error(err))
	}
}

// systemInfoState tracks the last inventory publish so maybePublishSystemInfo
// can decide whether a tick needs to republish.
type systemInfoState struct {
	hash        string
	publishedAt time.Time
}

// maybePublishSystemInfo republishes the retained inventory payload only
// when its hash changed since the last publish or the republish interval
// has elapsed, whichever comes first.
func (r *Runner) maybePublishSystemInfo(ctx context.Context, client mqtt.Client, state *systemInfoState) {
	info, err := collector.SystemInfo(ctx, r.cfg.AgentVersion, r.cfg.AgentCommit, r.cfg.AgentBuiltAt)
	if err != nil {
		r.logger.Warn("collecting system info failed", zap.Error(err))
		return
	}

	infoJSON, err := json.Marshal(info)
	if err != nil {
		r.logger.Warn("encoding system info failed", zap.Error(err))
		return
	}
	hash, err := stablehash.HashJSON(infoJSON)
	if err != nil {
		r.logger.Warn("hashing system info failed", zap.Error(err))
		return
	}

	stale := !state.publishedAt.IsZero() && time.Since(state.publishedAt) >= r.cfg.SystemInfoRepublishInterval
	if hash == state.hash && !stale && !state.publishedAt.IsZero() {
		return
	}

	payload := wire.SystemInfoPayload{
		V:    wire.PayloadVersion,
		TS:   time.Now().UnixMilli(),
		Hash: hash,
		Info: info,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("encoding system info payload failed", zap.Error(err))
		return
	}

	token := client.Publish(wire.SystemTopic(r.cfg.NodeID), 1, true, body)
	if !token.WaitTimeout(r.cfg.ConnectTimeout) {
		r.logger.Warn("system info publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		r.logger.Warn("system info publish failed", zap.Error(err))
		return
	}

	state.hash = hash
	state.publishedAt = time.Now()
}

// checkExchange re-trades the node's bearer for broker credentials and
// reports whether the tuple differs from current. A byte-different tuple
// means the server rotated the broker password; the caller closes the
// session and starts the next one with the returned credentials.
func (r *Runner) checkExchange(ctx context.Context, current *apiclient.BrokerCredentials) (next *apiclient.BrokerCredentials, changed bool, err error) {
	fresh, err := r.acquireCredentials(ctx)
	if err != nil {
		return nil, false, err
	}
	if fresh.Host != current.Host || fresh.Port != current.Port ||
		fresh.Username != current.Username || fresh.Password != current.Password {
		return fresh, true, nil
	}
	return nil, false, nil
}

func brokerURL(creds *apiclient.BrokerCredentials) string {
	scheme := "tcp"
	if creds.Port == websocketPort {
		scheme = "ws"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   creds.Host + ":" + strconv.Itoa(creds.Port),
	}
	return u.String()
}
