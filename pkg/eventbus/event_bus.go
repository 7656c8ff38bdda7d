// Package eventbus provides the messaging abstraction carrying
// orchestration events to the presentation layer and external sinks.
package eventbus

import (
	"context"

	"github.com/beaconops/flock/pkg/events"
)

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	Publish(ctx context.Context, key string, event events.Event) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	Close() error
	GenerateID() string
}
