package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
)

func newID() string { return uuid.New().String() }

// Directory is an in-memory store.UserDirectory for -inmemory mode and tests.
type Directory struct {
	mu    sync.RWMutex
	users map[string]model.UserProfile
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[string]model.UserProfile)}
}

// Put registers or replaces a profile.
func (d *Directory) Put(p model.UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[p.ID] = p
}

func (d *Directory) GetByID(ctx context.Context, id string) (*model.UserProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (d *Directory) GetMany(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]model.UserProfile, len(ids))
	for _, id := range ids {
		if p, ok := d.users[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
