package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ledgerMessage is one frame of the ledger feed.
type ledgerMessage struct {
	Type string                `json:"type"`
	Data models.LedgerSnapshot `json:"data"`
}

// handleLedgerWS handles GET /api/ws/ledger: upgrades to a websocket and
// pushes the caller's ledger snapshot on every change.
func (s *Server) handleLedgerWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	feed, cancel := sess.Ledger.Subscribe()
	client := &ledgerClient{conn: conn, feed: feed, touch: sess.Touch, logger: s.logger}
	s.logger.Debug().Str("user_id", sess.User.ID).Msg("Ledger feed connected")

	go client.writePump()
	go func() {
		client.readPump()
		cancel()
		s.logger.Debug().Str("user_id", sess.User.ID).Msg("Ledger feed disconnected")
	}()
}

// ledgerClient is one connected feed consumer. touch marks the owning
// session active on every push and pong, so the reaper keeps it open.
type ledgerClient struct {
	conn   *websocket.Conn
	feed   <-chan models.LedgerSnapshot
	touch  func()
	logger *common.Logger
}

// writePump sends snapshots until the feed closes or a write fails.
func (c *ledgerClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case snap, ok := <-c.feed:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ledgerMessage{Type: "snapshot", Data: snap})
			if err != nil {
				c.logger.Warn().Err(err).Msg("Failed to marshal ledger snapshot")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			c.touch()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the connection (mainly to detect close).
func (c *ledgerClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
