package presetstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ehr/dicom-tools/internal/preset"
)

// Repository persists presets. Get and Delete return preset.ErrPresetNotFound
// for unknown names.
type Repository interface {
	Save(ctx context.Context, p *Preset) error
	Get(ctx context.Context, name string) (*Preset, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, limit, offset int) ([]*Preset, int, error)
}

// MemoryRepo is a Repository backed by a map. It is used when no database
// is configured and in tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	presets map[string]Preset
	now     func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{presets: make(map[string]Preset), now: time.Now}
}

func (r *MemoryRepo) Save(_ context.Context, p *Preset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	p.UpdatedAt = now
	if prev, ok := r.presets[p.Name]; ok {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = now
	}
	r.presets[p.Name] = *p
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, name string) (*Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[name]
	if !ok {
		return nil, preset.ErrPresetNotFound
	}
	return &p, nil
}

func (r *MemoryRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.presets[name]; !ok {
		return preset.ErrPresetNotFound
	}
	delete(r.presets, name)
	return nil
}

// List returns presets ordered by name.
func (r *MemoryRepo) List(_ context.Context, limit, offset int) ([]*Preset, int, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)

	total := len(names)
	var items []*Preset
	for i := offset; i < total && len(items) < limit; i++ {
		p := r.presets[names[i]]
		items = append(items, &p)
	}
	r.mu.RUnlock()
	return items, total, nil
}
