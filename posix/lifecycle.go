package posix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hio-engine/libhio"
)

// instance is this package's state for one open dataset, attached to the
// public *libhio.Dataset's opaque Backend field. It owns the per-dataset
// open-file cache and reservation engine and serialises every entry point
// against concurrent element opens on this rank through mu.
type instance struct {
	mod         *module
	ctx         *libhio.Context
	rank        int
	basePath    string
	dataset     *libhio.Dataset
	fio         FileIO
	cache       *OpenFileCache
	control     *SharedControl
	reservation *ReservationEngine
	compression libhio.ManifestCompression
	directIO    bool // O_DIRECT through cache, valid only for block-aligned Strided writes.

	mu       sync.Mutex
	elements map[string]*libhio.Element
	prior    *Manifest // loaded from an existing instance directory, if any.
}

// openElement opens (or re-opens) the named element for this rank,
// creating its backing file under FileModeBasic or simply registering a
// fresh segment map under the shared file modes.
func (in *instance) openElement(ctx context.Context, name string) (*libhio.Element, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if el, ok := in.elements[name]; ok {
		return el, nil
	}

	eb := &elementBackend{segments: NewSegmentMap()}

	if in.prior != nil {
		found := false
		for _, em := range in.prior.Elements {
			if em.Name == name {
				for _, s := range em.Segments {
					eb.segments.Add(s.LogicalOffset, s.Length, s.FileID, s.PhysicalOffset)
				}
				found = true
				break
			}
		}
		if !found {
			if sm, err := recoverLegacySegments(ctx, in.fio, in.basePath, name, in.dataset.BlockSize); err == nil && sm.Size() > 0 {
				eb.segments = sm
			}
		}
	}

	if in.dataset.FileMode == libhio.FileModeBasic {
		path := in.mod.paths.BasicElementPath(in.basePath, name, in.dataset.Mode, in.rank)
		f, err := in.fio.OpenFile(ctx, path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, wrapErr(in.rank, "ElementOpen", path, err)
		}
		eb.basic = f
		if eb.segments.Size() == 0 {
			if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
				eb.segments.Add(0, fi.Size(), 0, 0)
			}
		}
	}

	el := &libhio.Element{
		Name:    name,
		Rank:    in.rank,
		Dataset: in.dataset,
		Backend: eb,
	}
	if in.dataset.FileMode == libhio.FileModeBasic && eb.basic != nil {
		el.Size = eb.segments.Size()
	}

	in.elements[name] = el
	return el, nil
}

// close drains every open element (closing basic-mode file handles,
// closing cached shared-mode handles), gathers each element's segment map
// into a Manifest, and persists it under this rank's manifest path.
func (in *instance) close(ctx context.Context, paths *PathBuilder) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	var firstErr error

	ebs := make(map[string]*elementBackend, len(in.elements))
	for name, el := range in.elements {
		eb, ok := el.Backend.(*elementBackend)
		if !ok {
			continue
		}
		ebs[name] = eb
		if eb.basic != nil {
			// ElementClose may already have closed this handle.
			if err := eb.basic.Close(); err != nil && !errors.Is(err, os.ErrClosed) && firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := in.cache.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}

	if in.reservation != nil {
		in.reservation.Forfeit(in.rank)
	}

	manifest := Manifest{
		Header:   in.dataset.DatasetHeader,
		Elements: elementManifestsFromCache(in.rank, ebs),
	}
	if err := saveManifest(ctx, in.fio, paths, in.basePath, in.rank, in.compression, manifest); err != nil && firstErr == nil {
		firstErr = err
	}

	// Every rank must see every other rank's per-rank manifest on disk
	// before the leader merges them, so the merge barrier comes before the
	// leader-only write rather than after it.
	if err := in.ctx.Comm.Barrier(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if in.ctx.Comm.IsLeader() {
		parts, err := collectRankManifests(ctx, in.fio, in.basePath)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err == nil {
			merged := mergeManifests(in.dataset.DatasetHeader, parts)
			if err := saveCanonicalManifest(ctx, in.fio, paths, in.basePath, merged); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	// Return codes follow this engine's 0-success/negative-error
	// convention, so the minimum across ranks is whichever rank hit the
	// most severe error — 0 only when every rank agrees it succeeded.
	localCode := 0
	if firstErr != nil {
		localCode = -1
	}
	code, err := in.ctx.Comm.AllreduceMin(ctx, localCode)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	if err == nil && code != 0 && firstErr == nil {
		firstErr = fmt.Errorf("dataset close failed on another rank")
	}

	return firstErr
}
