package watchdog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/guardian/internal/model"
	"go.uber.org/zap"
)

// Config for a watchdog client
type Config struct {
	URL            string // ws://host/ws
	Token          string
	ElderID        uuid.UUID
	CheckInterval  time.Duration
	ReconnectDelay time.Duration
	// PingWait is how long the connection may stay silent, pings included,
	// before it is treated as dead
	PingWait time.Duration
}

const writeWait = 10 * time.Second

type lifecycle int

const (
	foreground lifecycle = iota
	background
)

// Client keeps one elder subscription alive on the live channel and feeds
// its messages to a Monitor. Reconnects forever with a fixed delay.
type Client struct {
	cfg     Config
	monitor *Monitor
	dialer  *websocket.Dialer
	logger  *zap.Logger

	lifecycle chan lifecycle
	reconnect chan struct{}

	writeMu sync.Mutex
	conn    *websocket.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(cfg Config, monitor *Monitor, logger *zap.Logger) *Client {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.PingWait <= 0 {
		cfg.PingWait = 60 * time.Second
	}
	return &Client{
		cfg:       cfg,
		monitor:   monitor,
		dialer:    websocket.DefaultDialer,
		logger:    logger.Named("watchdog"),
		lifecycle: make(chan lifecycle, 1),
		reconnect: make(chan struct{}, 1),
	}
}

// Start launches the connection loop, the staleness ticker and the
// lifecycle listener
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.connectLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.monitor.Run(ctx.Done(), c.cfg.CheckInterval)
	}()
	go func() {
		defer c.wg.Done()
		c.lifecycleLoop(ctx)
	}()
}

// Close deregisters the reader, the ticker and the lifecycle listener
func (c *Client) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.closeConn()
	c.wg.Wait()
}

// Foreground is called when the app returns to the foreground
func (c *Client) Foreground() { c.notify(foreground) }

// Background is called when the app is sent to the background
func (c *Client) Background() { c.notify(background) }

func (c *Client) notify(l lifecycle) {
	select {
	case c.lifecycle <- l:
	default:
		// Replace a pending transition with the newest one
		select {
		case <-c.lifecycle:
		default:
		}
		select {
		case c.lifecycle <- l:
		default:
		}
	}
}

func (c *Client) lifecycleLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-c.lifecycle:
			if l == background {
				c.logger.Debug("Backgrounded")
				continue
			}
			if c.connected() {
				// Re-announce without assuming the device is online
				if err := c.subscribe(); err != nil {
					c.logger.Warn("Resubscribe failed", zap.Error(err))
				}
				continue
			}
			select {
			case c.reconnect <- struct{}{}:
			default:
			}
		}
	}
}

func (c *Client) connectLoop(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("Live channel connect failed", zap.Error(err))
		} else if c.setConn(ctx, conn) {
			c.monitor.Connected()
			if err := c.subscribe(); err != nil {
				c.logger.Warn("Subscribe failed", zap.Error(err))
			}
			c.readLoop(conn)
			c.closeConn()
			c.monitor.Disconnected()
		}

		select {
		case <-ctx.Done():
			return
		case <-c.reconnect:
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.New("live channel rejected the token")
		}
		return nil, err
	}
	return conn, nil
}

// readLoop returns when the server closes the socket or goes quiet for
// longer than PingWait. The server pings well inside that window.
func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(c.cfg.PingWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PingWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.logger.Warn("Live channel silent, reconnecting", zap.Duration("ping_wait", c.cfg.PingWait))
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("Live channel closed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PingWait))
		// The server coalesces queued messages with newlines
		for _, line := range bytes.Split(data, []byte("\n")) {
			c.handle(line)
		}
	}
}

func (c *Client) handle(line []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		c.logger.Debug("Ignoring unreadable message", zap.Error(err))
		return
	}

	switch msg.Type {
	case model.WSEventSubscribed:
		c.logger.Info("Subscribed", zap.String("elder_id", c.cfg.ElderID.String()))
		return
	case model.WSEventError:
		c.logger.Warn("Live channel error", zap.ByteString("payload", msg.Payload))
		return
	}

	var addressed struct {
		ElderID uuid.UUID `json:"elderId"`
	}
	if err := json.Unmarshal(msg.Payload, &addressed); err == nil && addressed.ElderID != c.cfg.ElderID {
		return
	}
	c.monitor.Observe(msg.Type, msg.Payload)
}

func (c *Client) subscribe() error {
	return c.write(model.WSEvent{
		Type:    model.WSEventSubscribe,
		Payload: model.SubscribeRequest{ElderID: c.cfg.ElderID},
	})
}

func (c *Client) write(event model.WSEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(event)
}

// setConn refuses the connection once Close has started
func (c *Client) setConn(ctx context.Context, conn *websocket.Conn) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) closeConn() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) connected() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn != nil
}
