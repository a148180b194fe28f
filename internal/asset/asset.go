package asset

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lexiqai/voice-studio/internal/observability"
)

var (
	// ErrReleased is returned when a revoked handle is used
	ErrReleased = errors.New("asset has been released")

	// ErrNotFound is returned by Open for ids that were never issued or are already released
	ErrNotFound = errors.New("asset not found")

	// ErrEmpty is returned when materializing a zero-length payload
	ErrEmpty = errors.New("audio payload is empty")

	// ErrTooLarge is returned when the payload exceeds the configured limit
	ErrTooLarge = errors.New("audio payload too large")
)

// DefaultContentType is assumed when neither the producer nor sniffing yields an audio type
const DefaultContentType = "audio/mpeg"

// Asset is an owned, revocable handle to one fully buffered audio result
type Asset struct {
	id          string
	contentType string
	size        int
	createdAt   time.Time

	mu       sync.RWMutex
	data     []byte
	released bool
}

// ID returns the handle's reference, usable with Manager.Open
func (a *Asset) ID() string { return a.id }

// ContentType returns the audio media type
func (a *Asset) ContentType() string { return a.contentType }

// Size returns the payload length in bytes
func (a *Asset) Size() int { return a.size }

// CreatedAt returns the time the handle was materialized
func (a *Asset) CreatedAt() time.Time { return a.createdAt }

// Released reports whether the handle has been revoked
func (a *Asset) Released() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.released
}

// Reader returns a seekable reader over the payload.
// A reader obtained before Release stays valid; new readers are refused afterwards.
func (a *Asset) Reader() (*bytes.Reader, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.released {
		return nil, ErrReleased
	}
	return bytes.NewReader(a.data), nil
}

// Bytes returns the payload
func (a *Asset) Bytes() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.released {
		return nil, ErrReleased
	}
	return a.data, nil
}

// ReleaseFunc is notified after a handle has been revoked
type ReleaseFunc func(a *Asset)

// Manager issues asset handles and tracks the live ones
type Manager struct {
	maxBytes int

	mu        sync.RWMutex
	live      map[string]*Asset
	onRelease []ReleaseFunc
}

// NewManager creates a manager. maxBytes <= 0 disables the size limit.
func NewManager(maxBytes int) *Manager {
	return &Manager{
		maxBytes: maxBytes,
		live:     make(map[string]*Asset),
	}
}

// OnRelease registers fn to be called after every release
func (m *Manager) OnRelease(fn ReleaseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRelease = append(m.onRelease, fn)
}

// Materialize wraps data as a new live handle.
// The caller owns the returned asset and must Release it once superseded.
func (m *Manager) Materialize(data []byte, contentType string) (*Asset, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if m.maxBytes > 0 && len(data) > m.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), m.maxBytes)
	}

	a := &Asset{
		id:          uuid.NewString(),
		contentType: resolveContentType(contentType, data),
		size:        len(data),
		createdAt:   time.Now(),
		data:        data,
	}

	m.mu.Lock()
	m.live[a.id] = a
	live := len(m.live)
	m.mu.Unlock()

	observability.RecordAssetMaterialized(a.size, live)
	return a, nil
}

// Release revokes the handle and drops its payload.
// Releasing the same asset twice returns ErrReleased.
func (m *Manager) Release(a *Asset) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return ErrReleased
	}
	a.released = true
	a.data = nil
	a.mu.Unlock()

	m.mu.Lock()
	delete(m.live, a.id)
	live := len(m.live)
	hooks := make([]ReleaseFunc, len(m.onRelease))
	copy(hooks, m.onRelease)
	m.mu.Unlock()

	observability.RecordAssetReleased(live)

	for _, fn := range hooks {
		fn(a)
	}
	return nil
}

// Open resolves a live handle by id
func (m *Manager) Open(id string) (*Asset, error) {
	m.mu.RLock()
	a, ok := m.live[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// Live returns the number of unreleased handles
func (m *Manager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// ReleaseAll revokes every live handle, used on shutdown
func (m *Manager) ReleaseAll() {
	m.mu.RLock()
	all := make([]*Asset, 0, len(m.live))
	for _, a := range m.live {
		all = append(all, a)
	}
	m.mu.RUnlock()

	for _, a := range all {
		_ = m.Release(a)
	}
}

// resolveContentType prefers the producer's declared audio type, then sniffing
func resolveContentType(declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mediaType, "audio/") {
			return mediaType
		}
	}

	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "audio/") {
		return sniffed
	}
	return DefaultContentType
}
