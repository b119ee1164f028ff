package httpapi

import (
	"net/http"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients come from the club site; CORS policy is enforced at
	// the HTTP layer, so the upgrade itself accepts any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// MatchStream pushes coalesced snapshot updates to websocket consumers.
type MatchStream struct {
	feedService *usecase.FeedService
	logger      *logging.Logger
}

func NewMatchStream(feedService *usecase.FeedService, logger *logging.Logger) *MatchStream {
	if logger == nil {
		logger = logging.Default()
	}
	return &MatchStream{feedService: feedService, logger: logger}
}

// ServeWS answers GET /v1/matches/ws. Each connection gets the current
// snapshot immediately and then every coalesced update until it goes away.
func (s *MatchStream) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}

	sub := s.feedService.Subscribe()
	done := make(chan struct{})

	go s.readPump(conn, done)
	go s.writePump(conn, sub, done)
}

func (s *MatchStream) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Consumers never send application data; the pump only notices closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *MatchStream) writePump(conn *websocket.Conn, sub *usecase.Subscription, done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	if err := s.writeSnapshot(conn, s.feedService.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(wsWriteWait))
				return
			}
			if err := s.writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *MatchStream) writeSnapshot(conn *websocket.Conn, snap usecase.Snapshot) error {
	payload, err := sonic.Marshal(map[string]any{
		"type": "snapshot",
		"data": snap,
	})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
