package posix

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hio-engine/libhio"
)

// openContentionBudget bounds how long Get retries opening a shared data
// file against another rank racing to create the same one (e.g. a parent
// directory two ranks both just issued MkdirAll for).
const openContentionBudget = 10 * time.Second

// openFileCacheSize is the number of concurrently-open *os.File handles the
// cache keeps per dataset instance before evicting: enough to keep every
// stripe's current data file open under normal access patterns without exhausting
// RLIMIT_NOFILE across many concurrently-open datasets.
const openFileCacheSize = 64

type cacheSlot struct {
	fileID int64
	file   *os.File
}

// OpenFileCache bounds the number of physical data files kept open at once
// for FileModeFilePerNode and FileModeStrided datasets, where the number of
// distinct file ids can exceed any sane handle budget. Eviction is by
// file_id mod N into a fixed slot table: a newly-requested file id always
// evicts whatever currently occupies its slot, rather than tracking
// recency, so the eviction policy is O(1) and stateless across opens.
type OpenFileCache struct {
	mu       sync.Mutex
	slots    []cacheSlot
	fio      FileIO
	paths    *PathBuilder
	openHook OpenHookFunc // non-nil only when this instance opted into O_DIRECT.
}

// NewOpenFileCache returns a cache with openFileCacheSize slots, opening
// shared data files through fio's buffered path.
func NewOpenFileCache(fio FileIO, paths *PathBuilder) *OpenFileCache {
	return &OpenFileCache{
		slots: make([]cacheSlot, openFileCacheSize),
		fio:   fio,
		paths: paths,
	}
}

// NewDirectOpenFileCache returns a cache that opens shared data files with
// O_DIRECT via DirectOpenHook, for a Strided-mode instance whose writes are
// always block-size-aligned.
func NewDirectOpenFileCache(fio FileIO, paths *PathBuilder) *OpenFileCache {
	c := NewOpenFileCache(fio, paths)
	c.openHook = DirectOpenHook
	return c
}

// Get returns the open *os.File for fileID under basePath, opening it
// (creating the file and any parent directory if missing) and evicting
// whatever previously occupied its slot if the slot holds a different
// file id.
func (c *OpenFileCache) Get(ctx context.Context, basePath string, fileID int64) (*os.File, error) {
	idx := fileID % int64(len(c.slots))

	c.mu.Lock()
	defer c.mu.Unlock()

	slot := &c.slots[idx]
	if slot.file != nil {
		if slot.fileID == fileID {
			return slot.file, nil
		}
		slot.file.Close()
		slot.file = nil
	}

	path := c.paths.DataFile(basePath, fileID)
	f, err := c.openWithContentionRetry(ctx, path)
	if err != nil {
		return nil, err
	}
	slot.fileID = fileID
	slot.file = f
	return f, nil
}

// openWithContentionRetry opens path, retrying transient errors with
// jittered backoff for up to openContentionBudget: the first rank to reach
// a new stripe file id races every other rank sharing that id to create it,
// and a losing attempt should fall in behind the winner rather than fail
// the write outright.
func (c *OpenFileCache) openWithContentionRetry(ctx context.Context, path string) (*os.File, error) {
	start := time.Now()
	for {
		f, err := c.open(ctx, path)
		if err == nil {
			return f, nil
		}
		if !libhio.ShouldRetry(err) {
			return nil, err
		}
		if toErr := libhio.TimedOut(ctx, "OpenFileCache.Get", start, openContentionBudget); toErr != nil {
			return nil, err
		}
		libhio.RandomSleep(ctx)
	}
}

// open opens path through the cache's configured hook, falling back to the
// buffered FileIO path when none is set. The hook variant has to create
// missing parent directories itself, since it bypasses FileIO's OpenFile.
func (c *OpenFileCache) open(ctx context.Context, path string) (*os.File, error) {
	if c.openHook == nil {
		return c.fio.OpenFile(ctx, path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	f, err := c.openHook(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		if mkErr := c.fio.MkdirAll(ctx, filepath.Dir(path), 0o755); mkErr == nil {
			f, err = c.openHook(path, os.O_RDWR|os.O_CREATE, 0o644)
		}
	}
	return f, err
}

// CloseAll closes every currently-open handle, returning the first error
// encountered (if any) after attempting to close them all.
func (c *OpenFileCache) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for i := range c.slots {
		if c.slots[i].file != nil {
			if err := c.slots[i].file.Close(); err != nil && first == nil {
				first = err
			}
			c.slots[i].file = nil
		}
	}
	return first
}
