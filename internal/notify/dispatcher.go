// Package notify delivers settlement events to users. Delivery is fire-and-forget:
// callers never wait on it and never see its failures.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/metrics"
	"handshake-backend/internal/models"
)

// Dispatcher is what the settlement engine calls
type Dispatcher interface {
	Notify(ctx context.Context, userID uuid.UUID, kind, title, message string, payload any)
}

// Store persists in-app notifications
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

type event struct {
	n *models.Notification
}

// AsyncDispatcher queues events on a bounded channel and writes them from one goroutine
type AsyncDispatcher struct {
	store      Store
	publishers []Publisher
	log        *logrus.Entry
	events chan event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsyncDispatcher starts the writer goroutine. Publishers see each notification once it
// is stored. Call Close on shutdown to drain the queue.
func NewAsyncDispatcher(store Store, logger *logrus.Logger, buffer int, publishers ...Publisher) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 1000
	}
	d := &AsyncDispatcher{
		store:      store,
		publishers: publishers,
		log:        logger.WithField("component", "notify"),
		events:     make(chan event, buffer),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Notify never blocks; when the queue is full the event is dropped and counted
func (d *AsyncDispatcher) Notify(_ context.Context, userID uuid.UUID, kind, title, message string, payload any) {
	n := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			d.log.WithError(err).WithField("type", kind).Warn("Dropping unencodable notification payload")
		} else {
			n.Payload = raw
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.NotificationsDropped.Inc()
		return
	}

	select {
	case d.events <- event{n: n}:
	default:
		metrics.NotificationsDropped.Inc()
		d.log.WithFields(logrus.Fields{"user_id": userID, "type": kind}).Warn("Notification queue full, dropping event")
	}
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()

	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := d.store.Create(ctx, ev.n)
		cancel()
		if err != nil {
			metrics.NotificationsDropped.Inc()
			d.log.WithError(err).WithFields(logrus.Fields{
				"user_id": ev.n.UserID,
				"type":    ev.n.Type,
			}).Warn("Failed to deliver notification")
			continue
		}
		for _, p := range d.publishers {
			p.Publish(ev.n)
		}
	}
}

// Close stops accepting events and waits for queued ones to be written
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
}
