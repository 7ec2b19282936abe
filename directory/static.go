// Package directory provides a PrincipalDirectory held in memory, for tests,
// development and small deployments configured from a file.
package directory

import (
	"context"
	"strings"
	"sync"

	nopw "github.com/MrEthical07/goNoPassword"
)

// Static resolves principals by ID, username or email. Username and email
// lookups are case-insensitive.
type Static struct {
	mu    sync.RWMutex
	byID  map[string]nopw.Principal
	byKey map[string]string
}

func NewStatic(principals ...nopw.Principal) *Static {
	d := &Static{
		byID:  make(map[string]nopw.Principal),
		byKey: make(map[string]string),
	}
	for _, p := range principals {
		d.Put(p)
	}
	return d
}

// Put adds or replaces a principal. Principals without an ID are ignored.
func (d *Static) Put(p nopw.Principal) {
	if p.ID == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byID[p.ID]; ok {
		d.dropKeys(old)
	}
	d.byID[p.ID] = p
	for _, k := range keys(p) {
		d.byKey[k] = p.ID
	}
}

func (d *Static) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byID[id]; ok {
		d.dropKeys(old)
		delete(d.byID, id)
	}
}

func (d *Static) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func (d *Static) GetPrincipalByIdentifier(ctx context.Context, identifier string) (nopw.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nopw.Principal{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byKey[normalize(identifier)]
	if !ok {
		return nopw.Principal{}, nopw.ErrPrincipalNotFound
	}
	return d.byID[id], nil
}

func (d *Static) GetPrincipalByID(ctx context.Context, id string) (nopw.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nopw.Principal{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.byID[id]
	if !ok {
		return nopw.Principal{}, nopw.ErrPrincipalNotFound
	}
	return p, nil
}

// dropKeys must be called with mu held.
func (d *Static) dropKeys(p nopw.Principal) {
	for _, k := range keys(p) {
		if d.byKey[k] == p.ID {
			delete(d.byKey, k)
		}
	}
}

func keys(p nopw.Principal) []string {
	var out []string
	if k := normalize(p.Username); k != "" {
		out = append(out, k)
	}
	if k := normalize(p.Email); k != "" {
		out = append(out, k)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
