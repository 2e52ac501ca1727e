package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ConnectionManager upgrades player connections and runs their pumps.
type ConnectionManager struct {
	registry   *Registry
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	config     ConnectionConfig

	mu    sync.Mutex
	conns map[*Connection]struct{}
	wg    sync.WaitGroup
}

// Connection is one player's websocket.
type Connection struct {
	id        string
	playerID  string
	sessionID string
	variant   models.Variant

	conn    *websocket.Conn
	send    chan []byte
	manager *ConnectionManager

	ConnectedAt time.Time

	closeOnce   sync.Once
	closed      chan struct{}
	closeCode   int
	closeReason string
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	// HandlerTimeout bounds how long one inbound frame may wait for a slot in its
	// session mailbox. A queued frame is always applied.
	HandlerTimeout time.Duration
	CheckOrigin    func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		HandlerTimeout:  5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			// Players join from any host serving the client.
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, registry *Registry, dispatcher *Dispatcher) *ConnectionManager {
	return &ConnectionManager{
		registry:   registry,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		conns:  make(map[*Connection]struct{}),
	}
}

// UpgradeConnection upgrades the request and attaches the connection to the
// session's connection set.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID, playerID string, variant models.Variant) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		id:          uuid.New().String(),
		playerID:    playerID,
		sessionID:   sessionID,
		variant:     variant,
		conn:        conn,
		send:        make(chan []byte, cm.config.SendBufferSize),
		manager:     cm,
		ConnectedAt: time.Now(),
		closed:      make(chan struct{}),
	}

	if err := cm.registry.Attach(sessionID, c); err != nil {
		conn.Close()
		return err
	}

	cm.mu.Lock()
	cm.conns[c] = struct{}{}
	cm.mu.Unlock()

	cm.wg.Add(2)
	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.id).
		Str("player_id", playerID).
		Str("session_id", sessionID).
		Str("variant", variant.String()).
		Msg("websocket connection established")

	return nil
}

// CloseAll closes every open connection and waits for their pumps to exit.
func (cm *ConnectionManager) CloseAll(ctx context.Context) error {
	cm.mu.Lock()
	for c := range cm.conns {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	cm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cm *ConnectionManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

func (cm *ConnectionManager) remove(c *Connection) {
	cm.mu.Lock()
	delete(cm.conns, c)
	cm.mu.Unlock()

	if cm.registry.Detach(c.sessionID, c) {
		log.Info().
			Str("connection_id", c.id).
			Str("player_id", c.playerID).
			Str("session_id", c.sessionID).
			Msg("connection unregistered")
	}
}

func (c *Connection) ID() string              { return c.id }
func (c *Connection) PlayerID() string        { return c.playerID }
func (c *Connection) SessionID() string       { return c.sessionID }
func (c *Connection) Variant() models.Variant { return c.variant }

// Enqueue queues msg for the write pump without blocking.
func (c *Connection) Enqueue(msg []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close asks the write pump to flush queued frames, send a close frame with
// code and shut the socket. Only the first call has effect.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closed)
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.manager.wg.Done()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to websocket")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.closed:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.write(websocket.CloseMessage, msg)
			return

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// flush writes whatever is still queued so an error event reaches the client
// before the close frame.
func (c *Connection) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Connection) readPump() {
	defer func() {
		c.manager.remove(c)
		c.manager.dispatcher.Disconnect(c)
		c.Close(websocket.CloseNormalClosure, "")
		c.manager.wg.Done()
	}()

	cfg := c.manager.config
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected websocket close error")
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.HandlerTimeout)
		c.manager.dispatcher.Dispatch(ctx, c, message)
		cancel()

		select {
		case <-c.closed:
			return
		default:
		}
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}
