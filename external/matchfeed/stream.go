package matchfeed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

// Reconnect delays after consecutive failures; the last step repeats.
var reconnectBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

const (
	streamReadLimit  = 4 << 20
	streamPongWait   = 60 * time.Second
	streamPingEvery  = 25 * time.Second
	streamWriteWait  = 10 * time.Second
	sinceEventIDParm = "sinceEventId"
)

// StreamHandler receives decoded stream payloads. FeedService satisfies it.
type StreamHandler interface {
	HandleSnapshot(ctx context.Context, raw usecase.RawSnapshot) error
	HandleDelta(ctx context.Context, updates []usecase.RawMatchUpdate, at time.Time)
	HandleEvent(ctx context.Context, raw usecase.RawEvent, at time.Time)
	SetStreamConnected(connected bool)
}

type StreamConfig struct {
	URL    string
	Dialer *websocket.Dialer
	Logger *logging.Logger
	Cursor *CursorStore
}

// Stream maintains a websocket connection to the upstream push feed,
// reconnecting with increasing delays and resuming from the persisted event
// cursor so missed events are replayed.
type Stream struct {
	url     string
	dialer  *websocket.Dialer
	logger  *logging.Logger
	cursor  *CursorStore
	handler StreamHandler
}

func NewStream(cfg StreamConfig, handler StreamHandler) (*Stream, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("stream url is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("stream handler is required")
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Stream{
		url:     cfg.URL,
		dialer:  dialer,
		logger:  logger,
		cursor:  cfg.Cursor,
		handler: handler,
	}, nil
}

// Run connects and consumes until the context is cancelled. Each dropped
// connection triggers a reconnect after the next backoff step; a connection
// that stayed up resets the ladder.
func (s *Stream) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connectedAt := time.Now()
		err := s.consumeOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(connectedAt) > time.Minute {
			attempt = 0
		}
		delay := reconnectBackoff[minInt(attempt, len(reconnectBackoff)-1)]
		attempt++

		s.logger.WarnContext(ctx, "stream disconnected", "error", err, "reconnectIn", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Stream) consumeOnce(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.dialURL(), nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	s.handler.SetStreamConnected(true)
	defer s.handler.SetStreamConnected(false)
	s.logger.InfoContext(ctx, "stream connected", "url", s.url)

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read stream message: %w", err)
		}
		if err := s.dispatch(ctx, raw); err != nil {
			s.logger.WarnContext(ctx, "stream message dropped", "error", err)
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(streamWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// dialURL appends the persisted cursor so upstream replays missed events.
func (s *Stream) dialURL() string {
	if s.cursor == nil {
		return s.url
	}
	lastID, err := s.cursor.LastEventID()
	if err != nil || lastID == "" {
		return s.url
	}

	parsed, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	query := parsed.Query()
	query.Set(sinceEventIDParm, lastID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// streamEnvelope is the upstream push wire format. Delta entries carry the
// full record under "match" on inserts and the changed fields under
// "changes" on updates; event entries are flat event objects with the owning
// matchId alongside the event fields.
type streamEnvelope struct {
	Type        string           `json:"type"`
	LastEventID string           `json:"lastEventId"`
	LastUpdated string           `json:"lastUpdated"`
	Current     []map[string]any `json:"current"`
	Old         []map[string]any `json:"old"`
	MatchUpdates []struct {
		Type    string         `json:"type"`
		MatchID string         `json:"matchId"`
		Match   map[string]any `json:"match"`
		Changes map[string]any `json:"changes"`
	} `json:"matchUpdates"`
	Events []map[string]any `json:"events"`
}

func (s *Stream) dispatch(ctx context.Context, raw []byte) error {
	var envelope streamEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode stream envelope: %w", err)
	}

	at := parsePayloadTime(envelope.LastUpdated)
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch envelope.Type {
	case "snapshot":
		err := s.handler.HandleSnapshot(ctx, usecase.RawSnapshot{
			Current:     envelope.Current,
			Old:         envelope.Old,
			LastUpdated: at,
		})
		if err != nil {
			return err
		}
	case "delta":
		updates := make([]usecase.RawMatchUpdate, 0, len(envelope.MatchUpdates))
		for _, update := range envelope.MatchUpdates {
			kind := usecase.UpdateKindUpsert
			if update.Type == "delete" {
				kind = usecase.UpdateKindDelete
			}
			// Inserts ship the full record, updates only the changed fields.
			fields := update.Changes
			if len(update.Match) > 0 {
				fields = update.Match
			}
			updates = append(updates, usecase.RawMatchUpdate{
				Kind:    kind,
				MatchID: update.MatchID,
				Fields:  fields,
			})
		}
		s.handler.HandleDelta(ctx, updates, at)
	case "event", "missed_events":
		for _, fields := range envelope.Events {
			matchID, _ := fields["matchId"].(string)
			s.handler.HandleEvent(ctx, usecase.RawEvent{
				MatchID: matchID,
				Fields:  fields,
			}, at)
		}
	default:
		return fmt.Errorf("unknown stream message type %q", envelope.Type)
	}

	if envelope.LastEventID != "" && s.cursor != nil {
		if err := s.cursor.SetLastEventID(envelope.LastEventID); err != nil {
			s.logger.WarnContext(ctx, "persist stream cursor", "error", err)
		}
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
