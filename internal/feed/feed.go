// Package feed keeps a websocket subscription to the odds collaborator and
// pushes every snapshot batch through ingest, so feed prices get the same
// provenance and observability treatment as scraped ones.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"nrlengine/internal/config"
	"nrlengine/internal/ingest"
)

// Sink is where delivered odds batches go; ingest.Service satisfies it.
type Sink interface {
	IngestOdds(ctx context.Context, runID string, season int, scraper, sourceRef string, records []ingest.OddsRecord, dryRun bool) (*ingest.SourceResult, error)
}

type subscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Season  int    `json:"season"`
}

// Envelope is one feed message. Only type "odds" carries records; everything
// else is connection plumbing.
type Envelope struct {
	Type    string              `json:"type"`
	Season  int                 `json:"season"`
	Records []ingest.OddsRecord `json:"records"`
}

type Listener struct {
	Sink   Sink
	Logger *zap.Logger
	Config config.FeedConfig
	Season int
}

// Run connects, subscribes and consumes until the context ends. Connection
// loss backs off exponentially with jitter and reconnects; each connection
// gets its own run ID so scraper_runs shows feed sessions distinctly.
func (l *Listener) Run(ctx context.Context) error {
	if strings.TrimSpace(l.Config.URL) == "" {
		return errors.New("feed: no url configured")
	}

	min := l.Config.ReconnectMin
	if min <= 0 {
		min = time.Second
	}
	max := l.Config.ReconnectMax
	if max <= 0 {
		max = 30 * time.Second
	}
	backoff := min

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, l.Config.URL, nil)
		if err != nil {
			l.Logger.Warn("feed connect failed", zap.Error(err))
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, max)
			continue
		}
		conn.SetReadLimit(2 << 20)

		if err := l.subscribe(ctx, conn); err != nil {
			l.Logger.Warn("feed subscribe failed", zap.Error(err))
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, max)
			continue
		}
		l.Logger.Info("feed connected", zap.String("url", l.Config.URL), zap.Int("season", l.Season))
		backoff = min

		err = l.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		l.Logger.Warn("feed connection lost", zap.Error(err))
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, max)
	}
}

func (l *Listener) subscribe(ctx context.Context, conn *websocket.Conn) error {
	payload, err := json.Marshal(subscribeRequest{Type: "subscribe", Channel: "odds", Season: l.Season})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (l *Listener) consume(ctx context.Context, conn *websocket.Conn) error {
	heartbeat := l.Config.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, 5*time.Second)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	runID := ingest.NewRunID()
	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}

		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		env, ok := decodeEnvelope(raw)
		if !ok {
			continue
		}
		if isPing(env, raw) {
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`))
			continue
		}
		if env.Type != "odds" || len(env.Records) == 0 {
			continue
		}
		season := env.Season
		if season == 0 {
			season = l.Season
		}
		if _, err := l.Sink.IngestOdds(ctx, runID, season, ingest.SourceFeed, l.Config.URL, env.Records, false); err != nil {
			// A bad batch must not kill the subscription.
			l.Logger.Error("feed batch rejected", zap.Error(err))
		}
	}
}

func decodeEnvelope(raw []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

func isPing(env Envelope, raw []byte) bool {
	if strings.EqualFold(env.Type, "ping") {
		return true
	}
	return strings.TrimSpace(string(raw)) == "ping"
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
