package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/pkg/logger"
)

// Client implements a BarStream over a WebSocket feed that pushes closed
// bars.
type Client struct {
	url            string
	symbols        []string
	timeframe      models.Timeframe
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new bar stream.
func New(url string, symbols []string, tf models.Timeframe, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		url:            url,
		symbols:        symbols,
		timeframe:      tf,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log.Named("feed"),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("connected", logger.String("url", c.url))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	for _, s := range c.symbols {
		msg := subscribeMessage{Type: "subscribe", Symbol: s, Timeframe: string(c.timeframe)}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.log.Debug("subscribed", logger.String("symbol", s))
	}
	return nil
}

type subscribeMessage struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

type wireBar struct {
	S  string          `json:"s"`
	TF string          `json:"tf"`
	T  int64           `json:"t"` // ms
	O  decimal.Decimal `json:"o"`
	H  decimal.Decimal `json:"h"`
	L  decimal.Decimal `json:"l"`
	C  decimal.Decimal `json:"c"`
	V  int64           `json:"v"`
}

type wireMessage struct {
	Type string    `json:"type"`
	Data []wireBar `json:"data"`
}

// decodeBars parses one frame. Frames that are not bar frames yield nil.
func decodeBars(b []byte, fallback models.Timeframe) ([]*models.Bar, error) {
	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m.Type != "bar" {
		return nil, nil
	}
	out := make([]*models.Bar, 0, len(m.Data))
	for _, d := range m.Data {
		tf := models.Timeframe(d.TF)
		if tf == "" {
			tf = fallback
		}
		out = append(out, &models.Bar{
			Symbol:    d.S,
			Timeframe: tf,
			Timestamp: time.UnixMilli(d.T).UTC(),
			Open:      d.O,
			High:      d.H,
			Low:       d.L,
			Close:     d.C,
			Volume:    d.V,
		})
	}
	return out, nil
}

// Read streams bars and errors until ctx ends or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(bars)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				errs <- fmt.Errorf("feed conn nil")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			decoded, err := decodeBars(b, c.timeframe)
			if err != nil {
				// heartbeats and acks are not JSON bar frames
				continue
			}
			for _, bar := range decoded {
				select {
				case bars <- bar:
				default:
					c.log.Warn("bar dropped on backpressure", logger.String("symbol", bar.Symbol))
				}
			}
		}
	}()

	return bars, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ drepo.BarStream = (*Client)(nil)
