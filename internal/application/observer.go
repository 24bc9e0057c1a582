package application

import (
	"context"
	"expvar"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
)

// Operation names the flow entry point that produced an event.
type Operation string

const (
	OpCreate Operation = "create"
	OpResend Operation = "resend"
	OpVerify Operation = "verify"
)

// Event is emitted once per handled operation, successful or not.
type Event struct {
	Name      string
	Operation Operation
	Outcome   Outcome
	User      *entity.User
	Err       error
	At        time.Time
}

// Observer receives flow events. OnEvent must not block for long; it runs on the request path.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// LogObserver writes one structured line per event.
type LogObserver struct {
	Logger *logrus.Logger
}

func (o LogObserver) OnEvent(_ context.Context, ev Event) {
	fields := logrus.Fields{
		"event":     ev.Name,
		"operation": ev.Operation,
		"outcome":   ev.Outcome,
	}
	if ev.User != nil {
		fields["user_id"] = ev.User.ID
		fields["state"] = ev.User.State()
	}
	entry := o.Logger.WithFields(fields)
	switch {
	case ev.Err == nil:
		entry.Info("signup event")
	case KindOf(ev.Err).Internal():
		entry.WithError(ev.Err).Error("signup event failed")
	default:
		entry.WithField("kind", KindOf(ev.Err).String()).WithError(ev.Err).Info("signup event rejected")
	}
}

// MetricsObserver counts events per operation and outcome, and failures per kind.
type MetricsObserver struct {
	Outcomes *expvar.Map
	Failures *expvar.Map
}

// NewMetricsObserver publishes its maps under prefix. expvar names are process global,
// so call it once per prefix.
func NewMetricsObserver(prefix string) *MetricsObserver {
	return &MetricsObserver{
		Outcomes: expvar.NewMap(prefix + "_outcomes"),
		Failures: expvar.NewMap(prefix + "_failures"),
	}
}

func (o *MetricsObserver) OnEvent(_ context.Context, ev Event) {
	o.Outcomes.Add(string(ev.Operation)+"."+string(ev.Outcome), 1)
	if ev.Err != nil {
		o.Failures.Add(KindOf(ev.Err).String(), 1)
	}
}
