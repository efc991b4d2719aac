package devicesync

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
)

const pushEventType = "sync.push"

type PushEvent struct {
	DeviceID  string    `json:"device_id"`
	Table     string    `json:"table"`
	HandledBy string    `json:"handled_by"`
	Applied   int       `json:"applied"`
	Rejected  int       `json:"rejected"`
	At        time.Time `json:"at"`
}

// EventPublisher delivers push events to SYNC_EVENTS_TOPIC.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, ev PushEvent) error
}

type pubsubPublisher struct{}

func (pubsubPublisher) Publish(ctx context.Context, topic string, ev PushEvent) error {
	_, err := config.PublishJSON(ctx, topic, ev, map[string]string{
		"event": pushEventType,
		"table": ev.Table,
	})
	return err
}

var eventPublisher EventPublisher = pubsubPublisher{}

// SetEventPublisher swaps the publisher and returns the previous one.
func SetEventPublisher(p EventPublisher) EventPublisher {
	prev := eventPublisher
	eventPublisher = p
	return prev
}

// publishPushEvent runs after commit. Publish errors are logged only.
func publishPushEvent(ctx context.Context, ev PushEvent) {
	topic := strings.TrimSpace(os.Getenv("SYNC_EVENTS_TOPIC"))
	if topic == "" {
		return
	}
	publisher := eventPublisher
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := publisher.Publish(pctx, topic, ev); err != nil {
			config.LogError(config.GetLogger(), "devicesync", "publishPushEvent", topic, ev, err)
		}
	}()
}
