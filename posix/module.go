package posix

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"sync"

	"github.com/hio-engine/libhio"
)

var errElementBackendMissing = errors.New("element has no posix backend attached")

// module is this package's hio.Module implementation: one module per
// configured data root. Context registers one module per root via
// hio.Context.AddModule; the root selector in the hio package decides which
// module a given DatasetOpen call lands on.
type module struct {
	dataRoot string
	ctx      *libhio.Context
	fio      FileIO
	paths    *PathBuilder
	probe    *FSProbe

	mu        sync.Mutex
	instances map[string]*instance // keyed by "name/id".
}

// NewModule returns an hio.Module backed by an ordinary directory tree at
// dataRoot, scoped to contextName.
func NewModule(ctx *libhio.Context, dataRoot, contextName string) libhio.Module {
	return &module{
		dataRoot:  dataRoot,
		ctx:       ctx,
		fio:       NewFileIO(),
		paths:     NewPathBuilder(dataRoot, contextName),
		probe:     NewFSProbe(),
		instances: make(map[string]*instance),
	}
}

func (m *module) DataRoot() string { return m.dataRoot }

func instanceKey(name string, id int64) string { return fmt.Sprintf("%s/%d", name, id) }

func (m *module) DatasetOpen(ctx context.Context, name string, id int64, opts libhio.DatasetOpenOptions) (*libhio.Dataset, error) {
	cfg := opts.Config
	info, err := m.probe.Probe(ctx, m.fio, m.dataRoot, cfg)
	if err != nil {
		return nil, err
	}

	blockSize := cfg.DatasetBlockSize
	if blockSize <= 0 {
		blockSize = libhio.DefaultBlockSize
	}
	stripeCount := info.StripeCount
	if stripeCount < 1 {
		stripeCount = 1
	}

	basePath := m.paths.DatasetDir(name, id)
	if opts.Flags.Has(libhio.FlagCreate) {
		if err := m.fio.MkdirAll(ctx, basePath, 0o755); err != nil {
			return nil, wrapErr(m.rank(), "DatasetOpen", basePath, err)
		}
	} else if !m.fio.Exists(ctx, basePath) {
		return nil, wrapErr(m.rank(), "DatasetOpen", basePath, os.ErrNotExist)
	}

	fileMode := opts.FileMode
	worldSize := m.ctx.Comm.Size()

	// STRIDED is a Shared-mode-only layout: it interleaves physical offsets
	// across stripes under one shared logical offset space, which a
	// UNIQUE-mode dataset's disjoint per-rank spaces cannot express.
	if fileMode == libhio.FileModeStrided && opts.Mode == libhio.Unique {
		log.Warn("strided file mode is incompatible with unique dataset mode, falling back to basic",
			"dataset", name, "id", id)
		fileMode = libhio.FileModeBasic
	}

	// The optimised (file_per_node/strided) layouts exist to spread writes
	// across a shared control block's stripe cursors; with no shared
	// control block to coordinate (world_size < 2, or none was formed),
	// there is nothing to optimise and basic mode is strictly simpler.
	if fileMode != libhio.FileModeBasic && worldSize < 2 {
		log.Warn("optimised file mode requires a shared control block, falling back to basic",
			"dataset", name, "id", id, "file_mode", fileMode, "world_size", worldSize)
		fileMode = libhio.FileModeBasic
	}

	header := libhio.DatasetHeader{
		Name:        name,
		ID:          id,
		Mode:        opts.Mode,
		FileMode:    fileMode,
		BlockSize:   blockSize,
		StripeCount: stripeCount,
		StripeSize:  info.StripeSize,
	}

	// Strided mode writes exactly one aligned block at a time at a
	// block-aligned physical offset (StripedOffset), the one layout in
	// this engine where O_DIRECT's alignment requirement is always
	// satisfied; every other mode keeps the buffered cache.
	directIO := cfg.DirectIO && fileMode == libhio.FileModeStrided
	cache := NewOpenFileCache(m.fio, m.paths)
	if directIO {
		cache = NewDirectOpenFileCache(m.fio, m.paths)
	}

	inst := &instance{
		mod:         m,
		ctx:         m.ctx,
		rank:        m.rank(),
		basePath:    basePath,
		fio:         m.fio,
		cache:       cache,
		directIO:    directIO,
		elements:    make(map[string]*libhio.Element),
		compression: cfg.ManifestCompression,
	}
	// A non-nil control/reservation is this engine's invariant for "this
	// dataset shares physical files across ranks"; basic mode never shares
	// a file, so it never gets one.
	if fileMode != libhio.FileModeBasic && worldSize >= 2 {
		inst.control = NewSharedControl(stripeCount)
		inst.reservation = NewReservationEngine(inst.control, stripeCount)
	}

	if !opts.Flags.Has(libhio.FlagTruncate) {
		if prior, err := loadManifest(ctx, m.fio, m.paths, basePath); err == nil {
			inst.prior = &prior
			header = prior.Header
		} else if prior, err := loadRankManifest(ctx, m.fio, m.paths, basePath, inst.rank); err == nil {
			// No canonical manifest.json yet (the prior open never reached a
			// clean leader-merge close, e.g. a crash) — recover at least this
			// rank's own prior segments from its own per-rank manifest.
			inst.prior = &prior
			header = prior.Header
		}
	}

	ds := &libhio.Dataset{
		DatasetHeader: header,
		Module:        m,
		Flags:         opts.Flags,
		BasePath:      basePath,
		Status:        libhio.StatusOpen,
		Backend:       inst,
	}
	inst.dataset = ds

	m.mu.Lock()
	m.instances[instanceKey(name, id)] = inst
	m.mu.Unlock()

	return ds, nil
}

func (m *module) DatasetClose(ctx context.Context, ds *libhio.Dataset) error {
	inst, ok := ds.Backend.(*instance)
	if !ok {
		return wrapErr(m.rank(), "DatasetClose", ds.BasePath, fmt.Errorf("dataset has no posix backend attached"))
	}

	err := inst.close(ctx, m.paths)

	m.mu.Lock()
	delete(m.instances, instanceKey(ds.Name, ds.ID))
	m.mu.Unlock()

	if err != nil {
		ds.RecordFirstError(err)
		return err
	}
	ds.Status = libhio.StatusClosed
	return nil
}

func (m *module) DatasetUnlink(ctx context.Context, name string, id int64) error {
	return m.unlink(ctx, name, id)
}

func (m *module) DatasetList(ctx context.Context, name string) ([]libhio.DatasetHeader, error) {
	return m.list(ctx, name)
}

func (m *module) ElementOpen(ctx context.Context, ds *libhio.Dataset, name string) (*libhio.Element, error) {
	inst, ok := ds.Backend.(*instance)
	if !ok {
		return nil, wrapErr(m.rank(), "ElementOpen", ds.BasePath, fmt.Errorf("dataset has no posix backend attached"))
	}
	return inst.openElement(ctx, name)
}

func (m *module) ElementClose(ctx context.Context, el *libhio.Element) error {
	eb, ok := el.Backend.(*elementBackend)
	if !ok {
		return nil
	}
	if eb.basic != nil {
		return eb.basic.Close()
	}
	return nil
}

func (m *module) ElementFlush(ctx context.Context, el *libhio.Element) error {
	eb, ok := el.Backend.(*elementBackend)
	if !ok || eb.basic == nil {
		return nil
	}
	return eb.basic.Sync()
}

func (m *module) ElementComplete(ctx context.Context, el *libhio.Element) (int64, error) {
	return el.Size, nil
}

func (m *module) ProcessReqs(ctx context.Context, ds *libhio.Dataset, reqs []*libhio.Request) error {
	inst, ok := ds.Backend.(*instance)
	if !ok {
		return wrapErr(m.rank(), "ProcessReqs", ds.BasePath, fmt.Errorf("dataset has no posix backend attached"))
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	var firstErr error
	for _, req := range reqs {
		if err := inst.processRequest(ctx, ds, req.Element, req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *module) Fini(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, inst := range m.instances {
		if err := inst.cache.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *module) rank() int {
	if m.ctx != nil {
		return m.ctx.Comm.Rank()
	}
	return 0
}
