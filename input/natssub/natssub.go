// Package natssub provides a source operation that emits variants received
// on a NATS subject.
//
// Messages are codec envelopes. A received Stop tag ends the source as if
// it were exhausted; other control tags and empty variants are dropped.
package natssub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/opflow/codec"
	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/variant"
)

// Output is the name of the subscriber's only output.
const Output = "out"

// DefaultPollTimeout bounds one wait for a message.
const DefaultPollTimeout = 100 * time.Millisecond

// Subscription delivers raw messages. Next returns nil data and a nil error
// when nothing arrived within timeout. natsclient.Subscription implements it.
type Subscription interface {
	Next(timeout time.Duration) ([]byte, error)
}

// Config configures a Subscriber.
type Config struct {
	// PollTimeout bounds one wait for a message so lifecycle commands are
	// served while the subject is quiet.
	PollTimeout time.Duration `json:"poll_timeout" yaml:"poll_timeout"`

	// IdleTimeout faults the operation when no message arrived for this
	// long. Zero waits forever.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// Limit ends the source after this many variants. Zero means no limit.
	Limit int `json:"limit" yaml:"limit"`
}

// Subscriber is the Producer behind a subscriber operation.
type Subscriber struct {
	name    string
	cfg     Config
	sub     Subscription
	logger  *slog.Logger
	metrics *metric.Metrics

	emitted int
	last    time.Time
}

// NewSubscriber creates the producer reading from sub.
func NewSubscriber(name string, sub Subscription, cfg Config, registry *metric.MetricsRegistry) (*Subscriber, error) {
	if sub == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Subscriber", "NewSubscriber", "check subscription")
	}
	if cfg.PollTimeout < 0 || cfg.IdleTimeout < 0 || cfg.Limit < 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: negative timeout or limit", errors.ErrInvalidConfig),
			"Subscriber", "NewSubscriber", "validate config")
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	s := &Subscriber{
		name:   name,
		cfg:    cfg,
		sub:    sub,
		logger: slog.Default().With("component", "natssub", "operation", name),
	}
	if registry != nil {
		s.metrics = registry.CoreMetrics()
	}
	return s, nil
}

// New creates a source operation with a single output named Output.
func New(name string, sub Subscription, cfg Config, registry *metric.MetricsRegistry,
	opts ...operation.Option,
) (*operation.Operation, error) {
	s, err := NewSubscriber(name, sub, cfg, registry)
	if err != nil {
		return nil, err
	}
	base := []operation.Option{operation.WithOutput(Output)}
	if registry != nil {
		base = append(base, operation.WithMetrics(registry))
	}
	return operation.New(name, s, append(base, opts...)...)
}

// Reset restarts the limit and idle clocks. Messages buffered by the
// subscription between runs are kept.
func (s *Subscriber) Reset() {
	s.emitted = 0
	s.last = time.Now()
}

// Emitted returns the number of variants emitted in the current run.
func (s *Subscriber) Emitted() int {
	return s.emitted
}

// Produce waits up to PollTimeout for one message and emits its variant.
func (s *Subscriber) Produce(ctx context.Context, out *operation.Emitter) (bool, error) {
	if s.cfg.Limit > 0 && s.emitted >= s.cfg.Limit {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := s.sub.Next(s.cfg.PollTimeout)
	if err != nil {
		return false, errors.WrapTransient(err, "Subscriber", "Produce", "read message")
	}
	if data == nil {
		if s.cfg.IdleTimeout > 0 && time.Since(s.last) >= s.cfg.IdleTimeout {
			return false, errors.WrapTransient(
				fmt.Errorf("%w: no message for %v", errors.ErrConnectionTimeout, s.cfg.IdleTimeout),
				"Subscriber", "Produce", "read message")
		}
		return true, nil
	}
	s.last = time.Now()

	env, err := codec.UnmarshalEnvelope(data)
	if err != nil {
		return false, errors.Wrap(err, "Subscriber", "Produce", "decode message")
	}

	v := env.Variant
	switch {
	case v.Is(variant.Stop):
		s.logger.Debug("Received Stop", "message_id", env.ID)
		return false, nil
	case v.IsControl(), v.IsEmpty():
		s.logger.Debug("Dropped message", "message_id", env.ID, "variant", v.String())
		return true, nil
	}

	if err := out.Emit(0, v); err != nil {
		return false, err
	}
	s.emitted++
	if s.metrics != nil {
		s.metrics.RecordBridgeMessage(s.name, "in")
	}
	return s.cfg.Limit == 0 || s.emitted < s.cfg.Limit, nil
}
