// Package natspub provides a sink operation that publishes every variant it
// receives to a NATS subject as a codec envelope.
package natspub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/opflow/codec"
	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/variant"
)

// Input is the name of the publisher's only input.
const Input = "in"

// DefaultFlushTimeout bounds the wait for the server to acknowledge a
// published message.
const DefaultFlushTimeout = 2 * time.Second

// Conn publishes raw messages. *natsclient.Client implements it.
type Conn interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Flush(timeout time.Duration) error
}

// Config configures a Publisher.
type Config struct {
	// Subject receives the messages. Wildcards are refused.
	Subject string `json:"subject" yaml:"subject"`

	// FlushTimeout is the write deadline of one message. A flush that
	// misses it faults the operation. Negative disables flushing.
	FlushTimeout time.Duration `json:"flush_timeout" yaml:"flush_timeout"`

	// ForwardStop publishes a Stop tag when the operation stops, so a
	// subscriber on the other side ends too.
	ForwardStop bool `json:"forward_stop" yaml:"forward_stop"`

	// RateLimit caps published messages per second. Zero means no limit.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Burst is the number of messages allowed above RateLimit. Defaults to 1.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// Publisher is the Processor behind a publisher operation.
type Publisher struct {
	name    string
	cfg     Config
	conn    Conn
	logger  *slog.Logger
	metrics *metric.Metrics
	limiter *rate.Limiter

	published int
}

// NewPublisher creates the processor publishing through conn.
func NewPublisher(name string, conn Conn, cfg Config, registry *metric.MetricsRegistry) (*Publisher, error) {
	if conn == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Publisher", "NewPublisher", "check connection")
	}
	if cfg.Subject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Publisher", "NewPublisher", "check subject")
	}
	if strings.ContainsAny(cfg.Subject, "*> \t") {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: subject %q is not a literal subject", errors.ErrInvalidConfig, cfg.Subject),
			"Publisher", "NewPublisher", "check subject")
	}
	if cfg.RateLimit < 0 || cfg.Burst < 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: rate limit and burst must not be negative", errors.ErrInvalidConfig),
			"Publisher", "NewPublisher", "check rate limit")
	}
	if cfg.FlushTimeout == 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}

	p := &Publisher{
		name:   name,
		cfg:    cfg,
		conn:   conn,
		logger: slog.Default().With("component", "natspub", "operation", name, "subject", cfg.Subject),
	}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if registry != nil {
		p.metrics = registry.CoreMetrics()
	}
	return p, nil
}

// New creates a sink operation with a single input named Input.
func New(name string, conn Conn, cfg Config, registry *metric.MetricsRegistry,
	opts ...operation.Option,
) (*operation.Operation, *Publisher, error) {
	p, err := NewPublisher(name, conn, cfg, registry)
	if err != nil {
		return nil, nil, err
	}

	base := []operation.Option{operation.WithInput(Input)}
	if registry != nil {
		base = append(base, operation.WithMetrics(registry))
	}
	if cfg.ForwardStop {
		base = append(base, operation.WithStateListener(p.observe))
	}
	op, err := operation.New(name, p, append(base, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return op, p, nil
}

// Reset clears the published count.
func (p *Publisher) Reset() {
	p.published = 0
}

// Published returns the number of variants published in the current run.
func (p *Publisher) Published() int {
	return p.published
}

// Process publishes the received variant.
func (p *Publisher) Process(ctx context.Context, in operation.Group, _ *operation.Emitter) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return errors.WrapTransient(err, "Publisher", "Process", "wait for rate limit")
		}
	}
	if err := p.publish(ctx, in.Value(0)); err != nil {
		return err
	}
	p.published++
	if p.metrics != nil {
		p.metrics.RecordBridgeMessage(p.name, "out")
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, v variant.Variant) error {
	data, err := codec.MarshalEnvelope(codec.Envelope{ID: uuid.NewString(), Variant: v})
	if err != nil {
		return errors.Wrap(err, "Publisher", "Process", "encode variant")
	}
	if err := p.conn.Publish(ctx, p.cfg.Subject, data); err != nil {
		return errors.WrapTransient(err, "Publisher", "Process", "publish")
	}
	if p.cfg.FlushTimeout > 0 {
		if err := p.conn.Flush(p.cfg.FlushTimeout); err != nil {
			return errors.WrapTransient(err, "Publisher", "Process", "flush")
		}
	}
	return nil
}

// observe publishes Stop when the operation stops, faulted runs included.
func (p *Publisher) observe(_ string, from, to operation.State) {
	if to != operation.Stopping || from == operation.Starting {
		return
	}
	if err := p.publish(context.Background(), variant.Tag(variant.Stop)); err != nil {
		p.logger.Warn("Failed to forward Stop", "error", err)
	}
}
