package main

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/collection"
	"github.com/pavitra93/go-planning-dashboard/shared/events"
	"github.com/pavitra93/go-planning-dashboard/shared/metrics"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/session"
)

// workspace is the server-side state of one client session: its identity
// context and one controller per record type, created on first use
type workspace struct {
	sessionID string
	sess      *session.Session
	publisher events.Publisher
	log       *logrus.Entry

	mu          sync.Mutex
	controllers map[string]interface{ Close() }
}

func newWorkspace(record session.Record, publisher events.Publisher) *workspace {
	sess := session.New(nil)
	sess.Restore(record.Snapshot())
	return &workspace{
		sessionID:   record.SessionID,
		sess:        sess,
		publisher:   publisher,
		log:         logrus.WithField("session_id", record.SessionID),
		controllers: make(map[string]interface{ Close() }),
	}
}

// controllerFor returns the workspace's controller for e, creating it once
func controllerFor[T any, P models.RecordPtr[T]](ws *workspace, e *entity[T, P]) *collection.Controller[T, P] {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if c, ok := ws.controllers[e.slug]; ok {
		return c.(*collection.Controller[T, P])
	}
	c := collection.New[T, P](e.def, e.table, ws.sess,
		collection.WithPublisher(ws.publisher),
		collection.WithLogger(ws.log),
	)
	ws.controllers[e.slug] = c
	return c
}

func (ws *workspace) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for slug, c := range ws.controllers {
		c.Close()
		delete(ws.controllers, slug)
	}
}

// workspaces keeps one workspace per live session, dropping idle ones
type workspaces struct {
	mu        sync.Mutex
	cache     *expirable.LRU[string, *workspace]
	publisher events.Publisher
	metrics   *metrics.HTTPMetrics
}

func newWorkspaces(size int, idle time.Duration, publisher events.Publisher, m *metrics.HTTPMetrics) *workspaces {
	w := &workspaces{publisher: publisher, metrics: m}
	w.cache = expirable.NewLRU[string, *workspace](size, func(_ string, ws *workspace) {
		ws.close()
		if w.metrics != nil {
			w.metrics.WorkspaceClosed()
		}
		ws.log.Debug("Workspace closed")
	}, idle)
	return w
}

// acquire returns the workspace of record's session, brought in line with
// the persisted identity state. A change of effective company made elsewhere
// (the auth service) resets the affected controllers here.
func (w *workspaces) acquire(record session.Record) *workspace {
	w.mu.Lock()
	defer w.mu.Unlock()

	ws, ok := w.cache.Get(record.SessionID)
	if !ok {
		ws = newWorkspace(record, w.publisher)
		if w.metrics != nil {
			w.metrics.WorkspaceOpened()
		}
	} else {
		ws.sess.Restore(record.Snapshot())
	}
	// Re-adding refreshes the idle deadline
	w.cache.Add(record.SessionID, ws)
	return ws
}

func (w *workspaces) len() int {
	return w.cache.Len()
}

func (w *workspaces) purge() {
	w.cache.Purge()
}
