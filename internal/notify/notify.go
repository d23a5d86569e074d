package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrEmptyEvent = errors.New("event has no type")

// MinReconnect is the shortest wait between reconnect attempts.
const MinReconnect = time.Second

func reconnectDelay(d time.Duration) time.Duration {
	if d < MinReconnect {
		return MinReconnect
	}
	return d
}

// Event is one change notification, e.g. {"type":"products.changed"}.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives decoded events. It runs on the subscriber goroutine.
type Handler func(ctx context.Context, ev Event)

// Source is a stream of change notifications. Run blocks until ctx is done.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// Publisher fans an event out to peer instances.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Decode parses a raw notification.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, ErrEmptyEvent
	}
	return ev, nil
}

// Nop is the source used when notifications are disabled.
type Nop struct{}

func (Nop) Run(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (Nop) Publish(context.Context, Event) error { return nil }

// runWithReconnect keeps calling session until ctx is cancelled, sleeping
// delay between attempts. session returns when its connection drops.
func runWithReconnect(ctx context.Context, log logrus.FieldLogger, name string, delay time.Duration, session func(context.Context) error) error {
	for {
		err := session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entry := log.WithField("source", name)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("notification stream dropped, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func dispatch(ctx context.Context, log logrus.FieldLogger, h Handler, data []byte) {
	ev, err := Decode(data)
	if err != nil {
		log.WithError(err).Debug("ignoring malformed notification")
		return
	}
	h(ctx, ev)
}
