package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/toolfoundation/model"
)

// ErrInvalidToolID is returned for malformed capability IDs.
var ErrInvalidToolID = errors.New("invalid tool ID format")

// Aggregator lists capabilities across the broker's services.
type Aggregator struct {
	broker *Broker
}

// NewAggregator creates a new capability aggregator.
func NewAggregator(broker *Broker) *Aggregator {
	return &Aggregator{broker: broker}
}

// ListTools connects to name if needed and returns its capabilities with
// Namespace set to the service name.
func (a *Aggregator) ListTools(ctx context.Context, name string) ([]model.Tool, error) {
	be, err := a.broker.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	tools, err := be.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	a.broker.Touch(name)
	for i := range tools {
		if tools[i].Namespace == "" {
			tools[i].Namespace = name
		}
	}
	return tools, nil
}

// ListAllTools returns capabilities from every configured service.
// Services that fail to connect are reported in the error map and skipped.
func (a *Aggregator) ListAllTools(ctx context.Context) ([]model.Tool, map[string]error) {
	all := make([]model.Tool, 0)
	failed := make(map[string]error)
	for _, name := range a.broker.Names() {
		tools, err := a.ListTools(ctx, name)
		if err != nil {
			failed[name] = err
			continue
		}
		all = append(all, tools...)
	}
	return all, failed
}

// ParseToolID splits a capability ID into service and capability name.
func ParseToolID(id string) (service, tool string, err error) {
	service, tool, err = model.ParseToolID(id)
	if err != nil {
		return "", "", ErrInvalidToolID
	}
	return service, tool, nil
}

// FormatToolID builds a capability ID from service and capability name.
func FormatToolID(service, tool string) string {
	if service == "" {
		return tool
	}
	return fmt.Sprintf("%s:%s", service, tool)
}
