// Package signal is the per-connection session gateway: it owns the
// WebSocket transport, dispatches join/vote events in arrival order
// and fans tally updates out through the room router.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pollwire/pollwire/internal/app"
	"github.com/pollwire/pollwire/internal/config"
	"github.com/pollwire/pollwire/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const (
	// Inbound event throttle, transport hygiene only. The durable
	// address window in the fairness checker is authoritative.
	msgLimit  = 30
	msgWindow = 10 * time.Second
)

type Controller struct {
	Ledger *app.Ledger
	Rooms  *app.Router

	cfg      *config.Config
	upgrader websocket.Upgrader
	throttle *MsgLimiter
	seq      *app.Sequencer
}

func NewController(cfg *config.Config, ledger *app.Ledger, rooms *app.Router) *Controller {
	return &Controller{
		Ledger: ledger,
		Rooms:  rooms,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
		throttle: NewMsgLimiter(msgLimit, msgWindow),
		seq:      app.NewSequencer(),
	}
}

// originChecker allows everything when no allow-list is configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame
	addr string

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	// The client token is durable per browser; the uuid suffix keeps
	// two tabs of one browser from evicting each other's membership.
	sid := core.SessionID(c.GetString("client_token") + ":" + uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
		addr: c.ClientIP(),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
