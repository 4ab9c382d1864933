package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/elb-pr/claudikins-tool-executor/metrics"
)

// Broker defaults.
const (
	DefaultIdleTimeout    = 3 * time.Minute
	DefaultSweepInterval  = time.Minute
	DefaultConnectTimeout = 60 * time.Second
)

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// Registry holds descriptors and connection states.
	// Required.
	Registry *Registry

	// Factory builds a backend for a descriptor.
	// Required.
	Factory Factory

	// IdleTimeout is how long a connection may go unused before the sweep
	// closes it. Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	// SweepInterval is the idle sweep period. Defaults to DefaultSweepInterval.
	SweepInterval time.Duration

	// ConnectTimeout bounds one connection attempt. Defaults to
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Logger is optional.
	Logger *zap.Logger

	// Metrics is optional.
	Metrics *metrics.Recorder

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Validate checks that all required fields are set.
func (c *BrokerConfig) Validate() error {
	var missing []string
	if c.Registry == nil {
		missing = append(missing, "Registry")
	}
	if c.Factory == nil {
		missing = append(missing, "Factory")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s",
			ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

func (c *BrokerConfig) applyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Broker connects services lazily, reuses live connections, and tears
// them down when idle or on shutdown.
//
// Concurrent Get calls for the same service share one connection attempt.
// A failed attempt is reported to every waiter and is not retried; the next
// Get starts a fresh attempt.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: Get honors the caller's ctx for waiting only; the attempt itself
//   runs detached and is bounded by ConnectTimeout.
// - Errors: connection failures match ErrServiceUnavailable; close failures
//   are logged and never returned.
// - Ownership: backends returned by Get are borrowed for one call.
type Broker struct {
	cfg      BrokerConfig
	registry *Registry
	logger   *zap.Logger

	attempts singleflight.Group
	closed   atomic.Bool

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewBroker creates a Broker. Returns ErrConfiguration if a required field
// is missing.
func NewBroker(cfg BrokerConfig) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Broker{
		cfg:      cfg,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}, nil
}

// Registry returns the broker's registry.
func (b *Broker) Registry() *Registry {
	return b.registry
}

// Get returns a live backend for name, connecting if needed.
func (b *Broker) Get(ctx context.Context, name string) (Backend, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("%w: %s: shutting down", ErrServiceUnavailable, name)
	}
	be, live, exists := b.registry.reuse(name, b.cfg.Now())
	if !exists {
		return nil, fmt.Errorf("%w: %w: %s", ErrServiceUnavailable, ErrServiceNotFound, name)
	}
	if live {
		return be, nil
	}

	attemptCtx := context.WithoutCancel(ctx)
	ch := b.attempts.DoChan(name, func() (any, error) {
		return b.connect(attemptCtx, name)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Backend), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, name, ctx.Err())
	}
}

func (b *Broker) connect(ctx context.Context, name string) (Backend, error) {
	// An attempt that finished between the caller's reuse check and DoChan
	// has already published its backend.
	if be, live, _ := b.registry.reuse(name, b.cfg.Now()); live {
		return be, nil
	}
	desc, _ := b.registry.Descriptor(name)
	b.registry.beginConnect(name)

	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	start := time.Now()
	be, err := b.cfg.Factory(desc)
	if err == nil {
		err = be.Start(ctx)
	}
	b.cfg.Metrics.ObserveConnect(name, err)
	if err != nil {
		b.registry.take(name)
		b.logger.Warn("service connect failed",
			zap.String("service", name),
			zap.String("command", desc.Command),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, name, err)
	}

	caps := listCapabilities(ctx, be)
	b.registry.setConnected(name, be, caps, b.cfg.Now())
	b.cfg.Metrics.SetConnected(len(b.registry.connected()))
	b.logger.Info("service connected",
		zap.String("service", name),
		zap.Int("capabilities", len(caps)),
		zap.Duration("duration", time.Since(start)))

	if b.closed.Load() {
		b.Disconnect(name)
		return nil, fmt.Errorf("%w: %s: shutting down", ErrServiceUnavailable, name)
	}
	return be, nil
}

// listCapabilities asks the backend for its capability names. A failure
// returns nil, which disables membership checks for the connection.
func listCapabilities(ctx context.Context, be Backend) []string {
	tools, err := be.ListTools(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Touch marks a successful call through name's connection.
func (b *Broker) Touch(name string) {
	b.registry.touch(name, b.cfg.Now())
}

// LastUsed returns when name's connection was last used.
func (b *Broker) LastUsed(name string) (time.Time, bool) {
	return b.registry.lastUsed(name)
}

// Capabilities returns the capability names listed when name connected.
// ok is false if name is not connected or the listing failed.
func (b *Broker) Capabilities(name string) ([]string, bool) {
	return b.registry.capabilities(name)
}

// Connected returns the names of services with a live connection.
func (b *Broker) Connected() []string {
	return b.registry.connected()
}

// Names returns all configured service names.
func (b *Broker) Names() []string {
	return b.registry.Names()
}

// Disconnect closes name's connection if it has one. It reports whether a
// connection was closed.
func (b *Broker) Disconnect(name string) bool {
	be := b.registry.take(name)
	if be == nil {
		return false
	}
	b.stop(name, be)
	return true
}

// Invalidate closes name's connection if it is still be, so the next Get
// reconnects. A connection that was already replaced is left alone.
func (b *Broker) Invalidate(name string, be Backend) bool {
	if b.registry.takeIf(name, be) == nil {
		return false
	}
	b.logger.Warn("service connection lost", zap.String("service", name))
	b.stop(name, be)
	return true
}

func (b *Broker) stop(name string, be Backend) {
	if err := be.Stop(); err != nil {
		b.logger.Warn("service close failed", zap.String("service", name), zap.Error(err))
	} else {
		b.logger.Info("service disconnected", zap.String("service", name))
	}
	b.cfg.Metrics.SetConnected(len(b.registry.connected()))
}

// DisconnectAll closes every live connection concurrently and waits for all
// of them, or for ctx to end.
func (b *Broker) DisconnectAll(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range b.registry.connected() {
		g.Go(func() error {
			b.Disconnect(name)
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepIdle disconnects services unused for longer than IdleTimeout and
// returns their names.
func (b *Broker) SweepIdle() []string {
	cutoff := b.cfg.Now().Add(-b.cfg.IdleTimeout)
	var evicted []string
	for _, name := range b.registry.connected() {
		be := b.registry.takeIdle(name, cutoff)
		if be == nil {
			continue
		}
		b.logger.Info("evicting idle service",
			zap.String("service", name),
			zap.Duration("idle_timeout", b.cfg.IdleTimeout))
		b.stop(name, be)
		evicted = append(evicted, name)
	}
	return evicted
}

// Start runs the idle sweep every SweepInterval until ctx ends or Shutdown
// is called. Calling Start twice has no effect.
func (b *Broker) Start(ctx context.Context) {
	b.sweepMu.Lock()
	defer b.sweepMu.Unlock()
	if b.sweepCancel != nil || b.closed.Load() {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.sweepCancel = cancel
	b.sweepDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(b.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.SweepIdle()
			}
		}
	}(b.sweepDone)
}

// Shutdown stops the sweep, then closes every connection concurrently.
// Get fails with ErrServiceUnavailable afterwards.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.closed.Store(true)

	b.sweepMu.Lock()
	cancel, done := b.sweepCancel, b.sweepDone
	b.sweepCancel, b.sweepDone = nil, nil
	b.sweepMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	err := b.DisconnectAll(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		b.logger.Warn("shutdown did not wait for every service", zap.Error(err))
	}
	return err
}
