package ws

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/metrics"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/subscription"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSubscribed  = "subscribed"
	TypeChange      = "change"
	TypeError       = "error"
)

var connectionIDs atomic.Uint64

// Request is a client frame.
type Request struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// Message is a server frame. Live is reported on subscribe: false means the change feed is down
// and the peer has to poll the REST endpoints instead.
type Message struct {
	Type    string          `json:"type"`
	Path    string          `json:"path,omitempty"`
	Op      models.ChangeOp `json:"op,omitempty"`
	Live    *bool           `json:"live,omitempty"`
	Data    interface{}     `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type client struct {
	owner     string
	principal *auth.Principal
	conn      *websocket.Conn
	subs      Subscriber
	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger

	mu     sync.Mutex
	active map[models.Path]*subscription.Subscription
}

func newClient(conn *websocket.Conn, p *auth.Principal, subs Subscriber, logger zerolog.Logger) *client {
	owner := p.Key() + "#" + strconv.FormatUint(connectionIDs.Add(1), 10)
	return &client{
		owner:     owner,
		principal: p,
		conn:      conn,
		subs:      subs,
		send:      make(chan Message, sendBuffer),
		done:      make(chan struct{}),
		logger:    logger.With().Str("owner", owner).Logger(),
		active:    make(map[models.Path]*subscription.Subscription),
	}
}

// run serves the connection until the peer goes away.
func (c *client) run() {
	metrics.WebSocketConnections.Inc()
	c.logger.Debug().Msg("Live connection opened")

	go c.writePump()
	c.readPump()

	c.close()
	c.subs.CancelOwner(c.owner)
	metrics.WebSocketConnections.Dec()
	c.logger.Debug().Msg("Live connection closed")
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected websocket close")
			}
			return
		}
		c.handle(req)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to write message")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handle(req Request) {
	path, err := models.ParsePath(req.Path)
	if err != nil {
		c.push(Message{Type: TypeError, Path: req.Path, Message: err.Error()})
		return
	}

	switch req.Type {
	case TypeSubscribe:
		c.subscribe(path)
	case TypeUnsubscribe:
		c.unsubscribe(path)
	default:
		c.push(Message{Type: TypeError, Path: req.Path, Message: "unknown message type " + strconv.Quote(req.Type)})
	}
}

func (c *client) subscribe(path models.Path) {
	if !CanSubscribe(c.principal, path) {
		c.push(Message{Type: TypeError, Path: path.String(), Message: "access denied"})
		return
	}

	// The snapshot may reach the peer before this acknowledgement.
	sub := c.subs.Subscribe(c.owner, path, c.deliver)
	live := sub.Active()
	c.push(Message{Type: TypeSubscribed, Path: path.String(), Live: &live})

	c.mu.Lock()
	c.active[path] = sub
	c.mu.Unlock()
}

func (c *client) unsubscribe(path models.Path) {
	c.mu.Lock()
	sub := c.active[path]
	delete(c.active, path)
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

func (c *client) deliver(event subscription.Event) {
	if event.Err != nil {
		c.push(Message{Type: TypeError, Path: event.Path.String(), Op: event.Op, Message: "failed to read current value"})
		return
	}

	msg := Message{Type: TypeChange, Path: event.Path.String(), Op: event.Op}
	if event.Path.IsDocument() {
		if event.Record != nil {
			msg.Data = event.Record
		}
	} else {
		records := event.Records
		if records == nil {
			records = []models.Record{}
		}
		msg.Data = records
	}
	c.push(msg)
}

// push never blocks the subscription loop: a client that cannot keep up loses frames.
func (c *client) push(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn().Str("path", msg.Path).Str("type", msg.Type).Msg("Live connection backlog full, dropping frame")
	}
}
