package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-signup-flow/internal/application"
)

// SignupIndexer stores one document per signup event. Indexing failures are
// logged and never reach the request.
type SignupIndexer struct {
	es      *elasticsearch.Client
	index   string
	logger  *logrus.Logger
	timeout time.Duration
}

func NewSignupIndexer(es *elasticsearch.Client, index string, logger *logrus.Logger) *SignupIndexer {
	return &SignupIndexer{es: es, index: index, logger: logger, timeout: 3 * time.Second}
}

type eventDocument struct {
	Event     string    `json:"event"`
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	UserID    string    `json:"user_id,omitempty"`
	State     string    `json:"state,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"@timestamp"`
}

func newEventDocument(ev application.Event) eventDocument {
	doc := eventDocument{
		Event:     ev.Name,
		Operation: string(ev.Operation),
		Outcome:   string(ev.Outcome),
		At:        ev.At.UTC(),
	}
	if ev.User != nil {
		doc.UserID = ev.User.ID
		doc.State = string(ev.User.State())
	}
	if ev.Err != nil {
		doc.ErrorKind = application.KindOf(ev.Err).String()
		doc.Error = ev.Err.Error()
	}
	return doc
}

func (s *SignupIndexer) OnEvent(ctx context.Context, ev application.Event) {
	if err := s.write(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("index", s.index).Warn("index signup event")
	}
}

func (s *SignupIndexer) write(ctx context.Context, ev application.Event) error {
	body, err := json.Marshal(newEventDocument(ev))
	if err != nil {
		return err
	}
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	res, err := s.es.Index(s.index, bytes.NewReader(body),
		s.es.Index.WithContext(c),
		s.es.Index.WithDocumentID(uuid.NewString()),
	)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("elasticsearch %s: %s", res.Status(), msg)
	}
	return nil
}

var _ application.Observer = (*SignupIndexer)(nil)
