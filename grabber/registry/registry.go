// Package registry implements GrabberRegistry: a process-wide lookup of
// every live GrabberCore keyed by the (display, window, surface) triple
// it was constructed with, per SPEC_FULL §4.4 (a host process may capture
// more than one surface concurrently, e.g. multiple windows on the same
// display).
package registry

import (
	"fmt"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/ssrecorder/capturecore/grabber"
)

// Entry is what the registry tracks per live grabber: the core itself,
// plus its surface and session id for lookups and debug listings.
type Entry struct {
	ID      uuid.UUID
	Surface grabber.Surface
	Core    *grabber.Core
}

// Registry maps a surface key to its live GrabberCore. Safe for
// concurrent use: backed by a sharded concurrent map the same way the
// rest of the pack (srediag-plugin-shm) uses it for its own registries,
// instead of a single mutex-guarded map, since a multi-surface host can
// register and look up from many goroutines at once.
type Registry struct {
	entries cmap.ConcurrentMap[string, *Entry]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: cmap.New[*Entry]()}
}

func key(s grabber.Surface) string {
	return fmt.Sprintf("%s/%d/%d", s.Display, s.Window, s.Drawable)
}

// Register adds core under its surface key. Returns an error if a
// grabber is already registered for that exact surface, since two
// GrabberCore instances racing on the same shared-memory region would
// corrupt each other's ring state.
func (r *Registry) Register(core *grabber.Core, surface grabber.Surface) error {
	k := key(surface)
	entry := &Entry{ID: core.ID(), Surface: surface, Core: core}
	ok := r.entries.SetIfAbsent(k, entry)
	if !ok {
		return fmt.Errorf("registry: grabber already registered for surface %+v", surface)
	}
	return nil
}

// Unregister removes the grabber for surface, if any.
func (r *Registry) Unregister(surface grabber.Surface) {
	r.entries.Remove(key(surface))
}

// Lookup returns the grabber registered for surface, if any.
func (r *Registry) Lookup(surface grabber.Surface) (*grabber.Core, bool) {
	entry, ok := r.entries.Get(key(surface))
	if !ok {
		return nil, false
	}
	return entry.Core, true
}

// List returns a snapshot of every currently registered entry.
func (r *Registry) List() []Entry {
	items := r.entries.Items()
	out := make([]Entry, 0, len(items))
	for _, entry := range items {
		out = append(out, *entry)
	}
	return out
}

// Count returns the number of currently registered grabbers.
func (r *Registry) Count() int {
	return r.entries.Count()
}
