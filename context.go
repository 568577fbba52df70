package hio

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
)

// Context is the process-wide handle holding rank/world identity, the
// module registry (one per configured data root), and the ordered,
// object-scoped error queue. Created at library init, torn down at Fini;
// erroneous to tear down with open datasets.
type Context struct {
	Name string // context_name, used to build "{root}/{context_name}.hio/..." paths.
	Comm Communicator

	mu      sync.Mutex
	modules []Module
	errs    []*Error
	opens   int // count of currently-open datasets, to guard Fini.
	roots   *rootState
}

// NewContext creates a Context bound to a communicator. If comm is nil, the
// trivial single-process Communicator is used.
func NewContext(name string, comm Communicator) *Context {
	if comm == nil {
		comm = NewSingleProcessCommunicator()
	}
	return &Context{Name: name, Comm: comm}
}

// AddModule registers a data-root backend; modules are tried in registration
// order by the root selector (rootselect.go).
func (c *Context) AddModule(m Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules = append(c.modules, m)
}

// Modules returns the registered modules in registration order.
func (c *Context) Modules() []Module {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// pushError appends err to the ordered error queue. It never blocks on I/O
// and is safe to call from any rank's goroutine in this process.
func (c *Context) pushError(err *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	log.Debug("hio: error queued", "code", err.Code, "op", err.Op, "path", err.Path)
}

// Errors returns a snapshot of the queued errors without draining them.
func (c *Context) Errors() []*Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Error, len(c.errs))
	copy(out, c.errs)
	return out
}

// DrainErrors returns and clears the queued errors; user code calls this to
// consume them.
func (c *Context) DrainErrors() []*Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.errs
	c.errs = nil
	return out
}

func (c *Context) noteOpen() {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
}

func (c *Context) noteClose() {
	c.mu.Lock()
	if c.opens > 0 {
		c.opens--
	}
	c.mu.Unlock()
}

// Fini tears down every registered module. It refuses to run while any
// dataset opened through this context remains open.
func (c *Context) Fini(ctx context.Context) error {
	c.mu.Lock()
	opens := c.opens
	mods := make([]Module, len(c.modules))
	copy(mods, c.modules)
	c.mu.Unlock()

	if opens > 0 {
		return NewError(BadParam, c.Comm.Rank(), "Fini", "", fmt.Errorf("context has %d dataset(s) still open", opens))
	}

	var lastErr error
	for _, m := range mods {
		if err := m.Fini(ctx); err != nil {
			lastErr = err
			c.pushError(NewError(Generic, c.Comm.Rank(), "Fini", m.DataRoot(), err))
		}
	}
	return lastErr
}

// DatasetOpen selects a module via the root selector and opens (name, id) on it.
func (c *Context) DatasetOpen(ctx context.Context, name string, id int64, opts DatasetOpenOptions) (*Dataset, error) {
	m, err := c.selectModule(opts.Flags)
	if err != nil {
		e := NewError(NotAvailable, c.Comm.Rank(), "DatasetOpen", name, err)
		c.pushError(e)
		return nil, e
	}
	ds, err := m.DatasetOpen(ctx, name, id, opts)
	if err != nil {
		e := NewError(Generic, c.Comm.Rank(), "DatasetOpen", name, err)
		c.pushError(e)
		return nil, e
	}
	c.noteOpen()
	return ds, nil
}

// NoteIOError lets a Module report an I/O error observed against itself so
// the root selector can steer future DatasetOpen calls away from it. Safe to
// call with a nil err (no-op) or with an err that doesn't qualify (no-op).
func (c *Context) NoteIOError(m Module, err error) {
	if IsFailoverQualifiedIOError(err) {
		c.markRootDegraded(m)
	}
}

// DatasetClose closes a dataset previously opened through this context.
func (c *Context) DatasetClose(ctx context.Context, ds *Dataset) error {
	defer c.noteClose()
	if err := ds.Module.DatasetClose(ctx, ds); err != nil {
		c.pushError(NewError(Generic, c.Comm.Rank(), "DatasetClose", ds.BasePath, err))
		return err
	}
	return nil
}
