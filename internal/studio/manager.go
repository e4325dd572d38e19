package studio

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/events"
	"github.com/aura-webinar/videocreator/internal/persistence"
)

var ErrNotOpen = errors.New("studio: not open")

// Broadcaster delivers studio events to a user's live connections.
type Broadcaster interface {
	PublishToUser(userID uuid.UUID, event string, payload interface{})
}

// ManagerConfig is the template for every studio the manager opens.
// UserID and Library are filled per user.
type ManagerConfig struct {
	Studio      Config
	Broadcaster Broadcaster
}

// Manager keeps at most one open studio per user and one Library per user,
// shared between HTTP calls and the user's studio.
type Manager struct {
	base      Config
	gateway   persistence.Gateway
	publisher events.Publisher
	broadcast Broadcaster
	logger    *zap.Logger

	mu        sync.Mutex
	studios   map[uuid.UUID]*Studio
	libraries map[uuid.UUID]*Library
	forwards  sync.WaitGroup
}

func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Studio.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := cfg.Studio.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	return &Manager{
		base:      cfg.Studio,
		gateway:   cfg.Studio.Gateway,
		publisher: pub,
		broadcast: cfg.Broadcaster,
		logger:    logger,
		studios:   make(map[uuid.UUID]*Studio),
		libraries: make(map[uuid.UUID]*Library),
	}
}

// Library returns the user's library, loading the quota on first use.
func (m *Manager) Library(ctx context.Context, userID uuid.UUID) (*Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.libraryLocked(ctx, userID)
}

func (m *Manager) libraryLocked(ctx context.Context, userID uuid.UUID) (*Library, error) {
	if lib, ok := m.libraries[userID]; ok {
		return lib, nil
	}
	lib, err := OpenLibrary(ctx, userID, m.gateway, m.publisher, m.logger)
	if err != nil {
		return nil, err
	}
	lib.emit = func(ev Event) { m.dispatch(userID, ev) }
	m.libraries[userID] = lib
	return lib, nil
}

// dispatch routes a library event through the user's studio when one is
// open so it lands on the studio's event channel, or straight to the
// broadcaster otherwise.
func (m *Manager) dispatch(userID uuid.UUID, ev Event) {
	m.mu.Lock()
	st := m.studios[userID]
	m.mu.Unlock()
	if st != nil {
		st.emit(ev)
		return
	}
	if m.broadcast != nil {
		ev.UserID = userID
		m.broadcast.PublishToUser(userID, string(ev.Type), ev)
	}
}

// Open returns the user's studio, opening it if needed.
func (m *Manager) Open(ctx context.Context, userID uuid.UUID) (*Studio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.studios[userID]; ok {
		return st, nil
	}
	lib, err := m.libraryLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg := m.base
	cfg.UserID = userID
	cfg.Library = lib
	st, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.studios[userID] = st

	m.forwards.Add(1)
	go func() {
		defer m.forwards.Done()
		for ev := range st.Events() {
			if m.broadcast != nil {
				m.broadcast.PublishToUser(userID, string(ev.Type), ev)
			}
		}
	}()
	return st, nil
}

// Get returns the user's open studio.
func (m *Manager) Get(userID uuid.UUID) (*Studio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.studios[userID]
	if !ok {
		return nil, ErrNotOpen
	}
	return st, nil
}

// Close closes the user's studio. Closing a studio that is not open is a
// no-op.
func (m *Manager) Close(userID uuid.UUID) {
	m.mu.Lock()
	st, ok := m.studios[userID]
	delete(m.studios, userID)
	m.mu.Unlock()
	if ok {
		st.Close()
	}
}

// CloseAll closes every studio and waits for their events to drain.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	studios := make([]*Studio, 0, len(m.studios))
	for id, st := range m.studios {
		studios = append(studios, st)
		delete(m.studios, id)
	}
	m.mu.Unlock()
	for _, st := range studios {
		st.Close()
	}
	m.forwards.Wait()
}
