package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-signup-flow/internal/application"
	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
)

type fakeES struct {
	mu     sync.Mutex
	paths  []string
	docs   []map[string]any
	status int
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var doc map[string]any
	_ = json.NewDecoder(r.Body).Decode(&doc)
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	f.docs = append(f.docs, doc)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(`{"result":"created"}`))
}

func newIndexer(t *testing.T, status int) (*SignupIndexer, *fakeES, *bytes.Buffer) {
	t.Helper()
	fake := &fakeES{status: status}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	es, err := helpers.NewESClient([]string{srv.URL}, "", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	return NewSignupIndexer(es, "signup-events", logger), fake, &buf
}

func TestSignupIndexerWritesDocument(t *testing.T) {
	idx, fake, logs := newIndexer(t, http.StatusCreated)

	idx.OnEvent(context.Background(), application.Event{
		Name:      "signup",
		Operation: application.OpVerify,
		Outcome:   application.OutcomeVerified,
		User:      &entity.User{ID: "u1", EmailVerified: true},
		At:        time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	})

	require.Len(t, fake.paths, 1)
	assert.True(t, strings.HasPrefix(fake.paths[0], "PUT /signup-events/_doc/"))
	assert.Equal(t, "verified", fake.docs[0]["outcome"])
	assert.Equal(t, "u1", fake.docs[0]["user_id"])
	assert.Equal(t, "verified", fake.docs[0]["state"])
	assert.Equal(t, "2026-02-03T04:05:06Z", fake.docs[0]["@timestamp"])
	assert.Empty(t, logs.String())
}

func TestSignupIndexerLogsFailures(t *testing.T) {
	idx, _, logs := newIndexer(t, http.StatusBadRequest)

	idx.OnEvent(context.Background(), application.Event{Operation: application.OpCreate, Outcome: application.OutcomeRejected})
	assert.Contains(t, logs.String(), "index signup event")
}
