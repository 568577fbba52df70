package hio

import (
	"fmt"
	"sync"
)

// rootState tracks whether a module's underlying filesystem has recently
// reported a failover-qualified I/O error. Once degraded, a module is
// skipped by selectModule until explicitly cleared; there is no background
// health check; degradation is only ever observed from the I/O path.
type rootState struct {
	mu       sync.Mutex
	degraded map[Module]bool
}

func newRootState() *rootState {
	return &rootState{degraded: make(map[Module]bool)}
}

func (r *rootState) markDegraded(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded[m] = true
}

func (r *rootState) clear(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.degraded, m)
}

func (r *rootState) isDegraded(m Module) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded[m]
}

// selectModule returns the first registered module that is not currently
// marked degraded. Modules are tried in registration order, matching the
// data-root preference order the caller configured the Context with; there
// is no load balancing across roots.
func (c *Context) selectModule(flags DatasetFlags) (Module, error) {
	c.rootsOnce()

	mods := c.Modules()
	if len(mods) == 0 {
		return nil, fmt.Errorf("no data root registered")
	}
	for _, m := range mods {
		if !c.roots.isDegraded(m) {
			return m, nil
		}
	}
	// every module is degraded: fall back to the first rather than fail
	// outright, since a degraded mark is just a preference hint, not proof
	// the filesystem is actually gone.
	return mods[0], nil
}

// markRootDegraded records that an I/O error observed against m qualifies as
// a failover condition (see IsFailoverQualifiedIOError), so future
// selectModule calls prefer other registered roots.
func (c *Context) markRootDegraded(m Module) {
	c.rootsOnce()
	c.roots.markDegraded(m)
}

// clearRootDegraded removes a previously recorded degraded mark, e.g. after
// an operator confirms the underlying filesystem recovered.
func (c *Context) clearRootDegraded(m Module) {
	c.rootsOnce()
	c.roots.clear(m)
}

func (c *Context) rootsOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roots == nil {
		c.roots = newRootState()
	}
}
