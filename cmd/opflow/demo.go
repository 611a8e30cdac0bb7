package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/opflow/config"
	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/input/generator"
	"github.com/c360/opflow/input/natssub"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/output/collector"
	"github.com/c360/opflow/output/natspub"
	"github.com/c360/opflow/pipeline"
	"github.com/c360/opflow/processor/cacheop"
	"github.com/c360/opflow/processor/mapper"
	"github.com/c360/opflow/variant"
)

// Operation names of the demo graph.
const (
	opKeys    = "keys"
	opCache   = "cache"
	opCompute = "compute"
	opFound   = "found"
	opResults = "results"
	opPublish = "publish"
)

var errShutdownTimeout = stderrors.New("pipeline did not stop in time")

// bridge carries the NATS ends of the demo graph. Nil fields leave the
// corresponding end out.
type bridge struct {
	sub natssub.Subscription
	pub natspub.Conn
}

// demo is a built cache-loop pipeline and the handles used to report on it.
type demo struct {
	pipeline *pipeline.Pipeline
	cache    *cacheop.Cache
	found    *collector.Collector
	results  *collector.Collector
	computed atomic.Int64
}

// buildDemo wires keys -> cache, cache misses through compute back into the
// cache, and the cache answers into the result sinks.
func buildDemo(cfg *config.Config, b bridge, logger *slog.Logger, registry *metric.MetricsRegistry) (*demo, error) {
	d := &demo{}
	common := []operation.Option{
		operation.WithQueueCapacity(cfg.Runtime.QueueCapacity),
		operation.WithPolicy(cfg.Runtime.QueuePolicy()),
		operation.WithLogger(logger),
		operation.WithMetrics(registry),
	}

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(registry),
		pipeline.WithHaltOnFault(cfg.Runtime.HaltOnFault),
	)

	keys, err := d.keySource(cfg, b, registry, common)
	if err != nil {
		return nil, err
	}

	cacheOp, c, err := cacheop.New(opCache, cfg.Cache, registry, common...)
	if err != nil {
		return nil, err
	}
	d.cache = c

	compute, err := mapper.New(opCompute, d.computeFunc(cfg.Demo.Delay), common...)
	if err != nil {
		return nil, err
	}

	foundOp, found, err := collector.New(opFound, nil, common...)
	if err != nil {
		return nil, err
	}
	resultsOp, results, err := collector.New(opResults, []collector.Option{
		collector.WithCallback(func(v variant.Variant) {
			logger.Debug("Result", "value", v.String())
		}),
	}, common...)
	if err != nil {
		return nil, err
	}
	d.found, d.results = found, results

	if err := p.Add(keys, cacheOp, compute, foundOp, resultsOp); err != nil {
		return nil, err
	}

	links := [][2]string{
		{opKeys + "." + generator.Output, opCache + "." + cacheop.InputKey},
		{opCache + "." + cacheop.OutputKey, opCompute + "." + mapper.Input},
		{opCompute + "." + mapper.Output, opCache + "." + cacheop.InputData},
		{opCache + "." + cacheop.OutputFound, opFound + "." + collector.Input},
		{opCache + "." + cacheop.OutputData, opResults + "." + collector.Input},
	}

	if b.pub != nil && cfg.NATS.Publisher.Subject != "" {
		pubOp, _, err := natspub.New(opPublish, b.pub, cfg.NATS.Publisher, registry, common...)
		if err != nil {
			return nil, err
		}
		if err := p.Add(pubOp); err != nil {
			return nil, err
		}
		links = append(links, [2]string{opCache + "." + cacheop.OutputData, opPublish + "." + natspub.Input})
	}

	for _, l := range links {
		if err := p.Connect(l[0], l[1]); err != nil {
			return nil, err
		}
	}

	d.pipeline = p
	return d, nil
}

// keySource feeds the cache from NATS when a subscription is present and
// from the configured keys otherwise.
func (d *demo) keySource(cfg *config.Config, b bridge, registry *metric.MetricsRegistry,
	opts []operation.Option,
) (*operation.Operation, error) {
	if b.sub != nil {
		return natssub.New(opKeys, b.sub, cfg.NATS.Subscriber, registry, opts...)
	}

	values := make([]variant.Variant, len(cfg.Demo.Keys))
	for i, k := range cfg.Demo.Keys {
		values[i] = variant.NewString(k)
	}
	return generator.New(opKeys, generator.Config{
		Values:   values,
		Passes:   cfg.Demo.Passes,
		Interval: cfg.Demo.Interval,
	}, opts...)
}

// computeFunc stands in for an expensive computation: it sleeps for delay
// and hashes the key.
func (d *demo) computeFunc(delay time.Duration) func(variant.Variant) (variant.Variant, error) {
	return func(v variant.Variant) (variant.Variant, error) {
		key, err := cacheop.KeyString(v)
		if err != nil {
			return variant.Empty(), err
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		d.computed.Add(1)
		h := fnv.New64a()
		_, _ = h.Write([]byte(key))
		return variant.New(int64(h.Sum64() >> 1)), nil
	}
}

// run starts the pipeline and waits for it. Cancelling stop asks the
// pipeline to stop; the wait is then bounded by grace.
func (d *demo) run(ctx context.Context, stop <-chan struct{}, grace time.Duration) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.pipeline.Start(runCtx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- d.pipeline.Wait() }()

	select {
	case err := <-done:
		return err
	case <-stop:
	}

	d.pipeline.Stop()
	if grace <= 0 {
		return <-done
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		cancel()
		<-done
		return errors.WrapFatal(fmt.Errorf("%w after %v", errShutdownTimeout, grace),
			"Demo", "run", "wait for pipeline")
	}
}

// report summarizes a finished run.
type report struct {
	Lookups   int     `json:"lookups"`
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	Computed  int64   `json:"computed"`
	Results   int     `json:"results"`
	Cached    int     `json:"cached"`
	Evictions int64   `json:"evictions"`
	HitRatio  float64 `json:"hit_ratio"`
}

func (d *demo) report() report {
	r := report{
		Computed: d.computed.Load(),
		Results:  d.results.Len(),
		Cached:   d.cache.Len(),
	}
	for _, v := range d.found.Values() {
		r.Lookups++
		if hit, err := variant.ValueAs[bool](v); err == nil && hit {
			r.Hits++
		} else {
			r.Misses++
		}
	}
	if stats := d.cache.Stats(); stats != nil {
		r.Evictions = stats.Evictions()
		r.HitRatio = stats.HitRatio()
	}
	return r
}
