// Package http exposes the engine command set to the local UI.
package http

import (
	"errors"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge/internal/bank"
	"github.com/quizforge/quizforge/internal/cache"
	"github.com/quizforge/quizforge/internal/engine"
	"github.com/quizforge/quizforge/internal/progress"
	"github.com/quizforge/quizforge/internal/storage"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager owns the open sessions: one bank handle plus one engine
// session per id, shared progress and cache stores underneath.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	progress *progress.Store
	cache    *cache.Store
	registry *bank.Registry
	log      *zap.Logger
}

type session struct {
	id     string
	bank   *bank.Store
	engine *engine.Session
	hub    *eventHub
	media  *storage.FSStore
}

func NewManager(ps *progress.Store, cs *cache.Store, reg *bank.Registry, log *zap.Logger) *Manager {
	return &Manager{
		sessions: map[string]*session{},
		progress: ps,
		cache:    cs,
		registry: reg,
		log:      log,
	}
}

// OpenSession opens the bank file and builds an engine session around
// it. The bank's cleaned absolute path is its identity for progress
// and the session cache.
func (m *Manager) OpenSession(path string) (*session, error) {
	store, err := bank.Open(path)
	if err != nil {
		return nil, err
	}
	hub := &eventHub{}
	eng := engine.New(store.Path(), store, m.progress.ForBank(store.Path()), m.cache,
		engine.WithLogger(m.log))
	eng.OnChange(func(st engine.State) {
		hub.publish(Event{Type: "state", State: &st})
	})
	sess := &session{
		id:     uuid.NewString(),
		bank:   store,
		engine: eng,
		hub:    hub,
		media:  storage.NewFSStore(filepath.Dir(store.Path())),
	}
	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()
	m.log.Info("session opened", zap.String("session", sess.id), zap.String("bank", store.Path()))
	return sess, nil
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// CloseSession tears the session down: timer cancelled, bank handle
// closed, id forgotten.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.engine.Reset()
	if err := sess.bank.Close(); err != nil {
		m.log.Warn("bank close failed", zap.String("bank", sess.bank.Path()), zap.Error(err))
	}
	m.log.Info("session closed", zap.String("session", id))
	return nil
}

// CloseAll is called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_ = m.CloseSession(id)
	}
}
