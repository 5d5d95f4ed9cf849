// Package registry keeps ingested dictionaries by name.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/japaniel/yomiport/pkg/yomichan"
)

// ErrDuplicate is returned by Add when a dictionary with the same title and
// revision is already registered.
var ErrDuplicate = errors.New("dictionary already registered")

// Registry holds dictionaries keyed by title and revision. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	dicts map[string]*yomichan.Dictionary
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{dicts: make(map[string]*yomichan.Dictionary)}
}

// Name is the registry key of a dictionary: "<title> (<revision>)".
func Name(d *yomichan.Dictionary) string {
	m := d.Manifest()
	return fmt.Sprintf("%s (%s)", m.Title, m.Revision)
}

// Add registers d under Name(d).
func (r *Registry) Add(d *yomichan.Dictionary) error {
	name := Name(d)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dicts[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicate)
	}
	r.dicts[name] = d
	return nil
}

// Remove drops the dictionary registered under name, if any.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dicts, name)
}

// Get returns the dictionary registered under name.
func (r *Registry) Get(name string) (*yomichan.Dictionary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dicts[name]
	return d, ok
}

// Len returns the number of registered dictionaries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dicts)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.dicts))
	for name := range r.dicts {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
