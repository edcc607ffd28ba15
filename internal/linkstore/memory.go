package linkstore

import (
	"context"
	"sync"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
)

// Memory is an in-process Store. Both indexes are guarded by one lock, so every
// operation is atomic with respect to every other. It is safe for concurrent use.
type Memory struct {
	opts Options
	ids  *idgen.Sequence

	mu     sync.RWMutex
	byCode map[string]*Link
	byID   map[int64]*Link
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:   NewOptions(opts...),
		ids:    idgen.NewSequence(),
		byCode: make(map[string]*Link),
		byID:   make(map[int64]*Link),
	}
}

func (m *Memory) Create(_ context.Context, p CreateParams) (Link, error) {
	const op = "linkstore.Memory.Create"

	if err := CheckCreate(op, p); err != nil {
		return Link{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	code, err := m.uniqueCodeLocked()
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}

	link := NewLink(m.ids.Next(), code, p, m.opts.Clock.Now())
	m.byCode[code] = &link
	m.byID[link.ID] = &link

	return link.clone(), nil
}

// uniqueCodeLocked draws codes until one is not in use. m.mu must be held.
func (m *Memory) uniqueCodeLocked() (string, error) {
	for {
		code, err := m.opts.NewCode()
		if err != nil {
			return "", err
		}
		if _, taken := m.byCode[code]; !taken {
			return code, nil
		}
	}
}

func (m *Memory) ResolveAndTrack(_ context.Context, shortCode, secret string) (string, error) {
	const op = "linkstore.Memory.ResolveAndTrack"

	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.byCode[shortCode]
	if !ok {
		return "", CodeNotFound(op, shortCode)
	}
	if err := CheckResolvable(op, *link, m.opts.Clock.Now(), secret); err != nil {
		return "", err
	}

	link.Clicks++
	return link.TargetURL, nil
}

func (m *Memory) Invalidate(_ context.Context, shortCode string) (Link, error) {
	const op = "linkstore.Memory.Invalidate"

	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.byCode[shortCode]
	if !ok {
		return Link{}, CodeNotFound(op, shortCode)
	}
	if err := CheckInvalidatable(op, *link); err != nil {
		return Link{}, err
	}

	link.Valid = false
	return link.clone(), nil
}

func (m *Memory) Stats(_ context.Context, id int64) (Stats, error) {
	const op = "linkstore.Memory.Stats"

	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.byID[id]
	if !ok {
		return Stats{}, IDNotFound(op, id)
	}
	return link.Stats(m.opts.Clock.Now()), nil
}

// Len returns the number of links held, invalidated ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
