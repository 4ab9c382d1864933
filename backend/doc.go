// Package backend manages connections to the remote services behind the
// gateway.
//
// This package provides:
//
//   - Descriptor, the immutable launch configuration of one service
//   - Backend, a live connection to a service (MCP subprocess or local handlers)
//   - Registry, which owns one connection state per descriptor
//   - Broker, which connects lazily, dedupes concurrent attempts, evicts
//     idle connections and tears everything down on shutdown
//   - Aggregator, for listing capabilities across services
//
// # Lifecycle
//
// Each service moves through Disconnected, Connecting and Connected. At most
// one attempt is in flight per service; concurrent callers share its result.
//
//	reg, _ := backend.NewRegistry(descriptors...)
//	broker, _ := backend.NewBroker(backend.BrokerConfig{
//	    Registry: reg,
//	    Factory:  stdio.Factory(stdio.Options{Logger: logger}),
//	})
//	broker.Start(ctx)
//	defer broker.Shutdown(context.Background())
//
//	be, err := broker.Get(ctx, "context7")
//
// # Idle Sweep
//
// Start runs a sweep every SweepInterval that closes connections unused for
// longer than IdleTimeout. Shutdown stops the sweep first, then closes every
// connection concurrently.
package backend
