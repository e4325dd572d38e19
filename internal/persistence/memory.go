package persistence

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aura-webinar/videocreator/internal/models"
)

// MemoryMetadata is a MetadataStore kept in process memory.
type MemoryMetadata struct {
	mu     sync.Mutex
	videos map[uuid.UUID]models.VideoRecord
	quotas map[uuid.UUID]models.UserQuota
}

func NewMemoryMetadata() *MemoryMetadata {
	return &MemoryMetadata{
		videos: make(map[uuid.UUID]models.VideoRecord),
		quotas: make(map[uuid.UUID]models.UserQuota),
	}
}

func (m *MemoryMetadata) InsertVideo(_ context.Context, v *models.VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[v.ID] = *v
	return nil
}

func (m *MemoryMetadata) GetVideo(_ context.Context, id uuid.UUID) (*models.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryMetadata) ListVideos(_ context.Context, userID uuid.UUID) ([]models.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VideoRecord
	for _, v := range m.videos {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryMetadata) DeleteVideo(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[id]; !ok {
		return ErrNotFound
	}
	delete(m.videos, id)
	return nil
}

func (m *MemoryMetadata) GetQuota(_ context.Context, userID uuid.UUID) (*models.UserQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *MemoryMetadata) UpsertQuota(_ context.Context, q *models.UserQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[q.UserID] = *q
	return nil
}

// MemoryObjects is an ObjectStore kept in process memory.
type MemoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: make(map[string][]byte)}
}

func (m *MemoryObjects) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return "mem://" + key, nil
}

func (m *MemoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryObjects) DownloadURL(_ context.Context, key string) (string, error) {
	return "mem://" + key, nil
}

// Object returns a stored object.
func (m *MemoryObjects) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// Len counts stored objects.
func (m *MemoryObjects) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
