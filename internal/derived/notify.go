package derived

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/muesli/reflow/wordwrap"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/metrics"
	"github.com/tgienger/checker/internal/mirror"
	"github.com/tgienger/checker/internal/models"
)

// Notifications picks the changes that should notify the observer. Only
// modified tasks whose new state is done qualify, and only TeamLead observers
// are notified. There is no deduplication and no check of who made the change.
func Notifications(role models.Role, changes []mirror.Change[models.Task]) []models.Notification {
	if role != models.RoleTeamLead {
		return nil
	}
	var out []models.Notification
	for _, c := range changes {
		if c.Type != docstore.Modified || !c.Item.IsDone {
			continue
		}
		out = append(out, models.Notification{
			ClientName:  c.Item.ClientNameSnapshot,
			Title:       c.Item.Title,
			ProjectName: c.Item.ProjectNameSnapshot,
		})
	}
	return out
}

// Emitter displays a notification. Emission is a side effect outside the
// engine; the engine only decides what to emit.
type Emitter interface {
	Emit(n models.Notification) error
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(n models.Notification) error

func (f EmitterFunc) Emit(n models.Notification) error { return f(n) }

// LogEmitter writes notifications to a logger
type LogEmitter struct {
	Logger *log.Logger
}

func (e LogEmitter) Emit(n models.Notification) error {
	l := e.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("notification: %s: %s", n.ClientName, n.Body())
	return nil
}

// WriterEmitter prints notifications to W, wrapping the body at Width
// columns. A zero Width disables wrapping.
type WriterEmitter struct {
	W     io.Writer
	Width int

	mu sync.Mutex
}

func (e *WriterEmitter) Emit(n models.Notification) error {
	body := n.Body()
	if e.Width > 0 {
		body = wordwrap.String(body, e.Width)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := fmt.Fprintf(e.W, "%s\n%s\n", n.ClientName, body)
	return err
}

// Notifier turns mirror events into emitted notifications for one observer
type Notifier struct {
	role    models.Role
	emitter Emitter
	metrics *metrics.Metrics
}

// NewNotifier creates a Notifier. m may be nil.
func NewNotifier(role models.Role, emitter Emitter, m *metrics.Metrics) *Notifier {
	return &Notifier{role: role, emitter: emitter, metrics: m}
}

// Handle emits the notifications for ev and returns them. Emission stops at
// the first emitter error.
func (n *Notifier) Handle(ev mirror.Event[models.Task]) ([]models.Notification, error) {
	notes := Notifications(n.role, ev.Changes)
	for i, note := range notes {
		if err := n.emitter.Emit(note); err != nil {
			n.metrics.Notified(i)
			return notes[:i], fmt.Errorf("emit notification: %w", err)
		}
	}
	n.metrics.Notified(len(notes))
	return notes, nil
}
