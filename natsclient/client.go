package natsclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client closed")
)

// Client owns one NATS connection shared by the bridge operations of a
// pipeline.
type Client struct {
	url     string
	status  atomic.Value // stores ConnectionStatus
	logger  *slog.Logger
	metrics *metric.Metrics

	conn *nats.Conn
	subs []*nats.Subscription

	retry retry.Config

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication, cleared on close
	username string
	password string
	token    string

	clientName string
	tlsConfig  *tls.Config

	onHealthChange func(bool)

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a NATS client. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "check url")
	}

	c := &Client{
		url:           url,
		logger:        slog.Default(),
		retry:         retry.Quick(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.logger = c.logger.With("component", "natsclient", "url", url)
	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is healthy
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Conn returns the underlying connection, nil before Connect.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(status == StatusConnected)
	}
}

// ConnectionOptions returns the options passed to nats.Connect.
func (c *Client) ConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if c.tlsConfig != nil {
		opts = append(opts, nats.Secure(c.tlsConfig))
	}
	return opts
}

// Connect dials the server, retrying with backoff until the retry budget or
// ctx runs out.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.IsHealthy() {
		return nil
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS")

	opts := c.ConnectionOptions()
	cfg := c.retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Debug("NATS connect failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	if cfg.Retryable == nil {
		cfg.Retryable = errors.IsTransient
	}

	conn, err := retry.DoWithResult(ctx, cfg, func() (*nats.Conn, error) {
		conn, err := nats.Connect(c.url, opts...)
		return conn, classifyConnectError(err)
	})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.Wrap(err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS")
	c.notifyHealth(true)
	return nil
}

// classifyConnectError marks rejected credentials and TLS mismatches as
// invalid. Any other dial failure is a transient ErrNoConnection.
func classifyConnectError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, nats.ErrAuthorization) ||
		stderrors.Is(err, nats.ErrAuthExpired) ||
		stderrors.Is(err, nats.ErrAuthRevoked) ||
		stderrors.Is(err, nats.ErrSecureConnRequired) ||
		stderrors.Is(err, nats.ErrSecureConnWanted) {
		return errors.WrapInvalid(err, "Client", "Connect", "authenticate")
	}
	return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrNoConnection, err),
		"Client", "Connect", "dial")
}

// Close unsubscribes, drains and closes the connection. It is safe to call
// more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) &&
			!stderrors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	c.subs = nil
	conn := c.conn
	c.conn = nil
	c.username = ""
	c.password = ""
	c.token = ""
	c.mu.Unlock()

	if conn != nil {
		if err := c.drain(ctx, conn); err != nil {
			errs = append(errs, err)
		}
		conn.Close()
	}

	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

// drain waits for an asynchronous Drain to close conn.
func (c *Client) drain(ctx context.Context, conn *nats.Conn) error {
	timeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	if err := conn.Drain(); err != nil {
		if stderrors.Is(err, nats.ErrConnectionClosed) {
			return nil
		}
		return errors.Wrap(err, "Client", "Close", "drain connection")
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for !conn.IsClosed() {
		select {
		case <-ticker.C:
		case <-deadline.C:
			return errors.WrapTransient(
				fmt.Errorf("%w: drain took longer than %v", errors.ErrConnectionTimeout, timeout),
				"Client", "Close", "drain connection")
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
		}
	}
	return nil
}

// RTT returns the round-trip time to the NATS server
func (c *Client) RTT() (time.Duration, error) {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Publish publishes a message to a NATS subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Flush waits until the server has processed everything published so far,
// or until timeout elapses.
func (c *Client) Flush(timeout time.Duration) error {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	if err := conn.FlushTimeout(timeout); err != nil {
		if stderrors.Is(err, nats.ErrTimeout) {
			return fmt.Errorf("%w: flush after %v", errors.ErrConnectionTimeout, timeout)
		}
		return err
	}
	return nil
}

// SubscribeSync creates a pull-style subscription. Messages published after
// the call are buffered until read with Subscription.Next.
func (c *Client) SubscribeSync(subject string) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	sub, err := c.conn.SubscribeSync(subject)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "SubscribeSync", "subscribe "+subject)
	}
	c.subs = append(c.subs, sub)
	return &Subscription{sub: sub}, nil
}

// Subscription is a synchronous subscription.
type Subscription struct {
	sub *nats.Subscription
}

// Subject returns the subscribed subject.
func (s *Subscription) Subject() string {
	return s.sub.Subject
}

// Next waits up to timeout for a message. It returns nil data and a nil
// error when nothing arrived in time.
func (s *Subscription) Next(timeout time.Duration) ([]byte, error) {
	msg, err := s.sub.NextMsg(timeout)
	if err != nil {
		if stderrors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		if stderrors.Is(err, nats.ErrConnectionClosed) || stderrors.Is(err, nats.ErrBadSubscription) {
			return nil, fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
		}
		return nil, err
	}
	return msg.Data, nil
}

// Unsubscribe removes the subscription.
func (s *Subscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (c *Client) notifyHealth(healthy bool) {
	c.mu.RLock()
	fn := c.onHealthChange
	c.mu.RUnlock()
	if fn != nil {
		go fn(healthy)
	}
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.logger.Info("NATS reconnected")
	c.notifyHealth(true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.notifyHealth(false)
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		c.logger.Error("NATS subscription error", "subject", sub.Subject, "error", err)
		return
	}
	c.logger.Error("NATS error", "error", err)
}
