package posix

import (
	"context"
	"os"

	"github.com/ncw/directio"

	"github.com/hio-engine/libhio"
)

// OpenHookFunc lets a caller customize how data files are opened (e.g. to
// add O_DIRECT via directio on a filesystem that supports it), in place of
// this engine's plain os.OpenFile.
type OpenHookFunc func(path string, flag int, perm os.FileMode) (*os.File, error)

// FSInfo is what FSProbe discovers about a data root: its striping
// geometry (when the filesystem exposes one, else the configured
// defaults), and whether group-based locking is required instead of POSIX
// advisory locks (some shared filesystems serialize writers by client
// group rather than by byte range).
type FSInfo struct {
	StripeUnit  int64
	StripeCount int
	StripeSize  int64
	GroupLocked bool
}

// FSProbe resolves a dataset's effective striping configuration: the
// caller's explicit Config always wins; values the caller left at zero
// take fixed defaults (see Probe), not values read from the filesystem.
type FSProbe struct {
	OpenHook OpenHookFunc
}

// NewFSProbe returns an FSProbe using os.OpenFile as its open hook.
func NewFSProbe() *FSProbe {
	return &FSProbe{OpenHook: os.OpenFile}
}

// Probe returns the effective FSInfo for dataRoot given cfg. Discovering a
// real filesystem's stripe geometry requires ioctls this engine does not
// issue (lustre's LL_IOC_LOV_GETSTRIPE, an analogous call for other
// parallel filesystems); lacking that, an ordinary POSIX directory is
// treated as stripe_count=1, and Config's StripeCount/StripeSize always
// take precedence when set.
func (p *FSProbe) Probe(ctx context.Context, fio FileIO, dataRoot string, cfg libhio.Config) (FSInfo, error) {
	info := FSInfo{
		StripeCount: 1,
		StripeSize:  libhio.DefaultBlockSize,
		StripeUnit:  libhio.DefaultBlockSize,
	}
	if cfg.StripeCount > 0 {
		info.StripeCount = cfg.StripeCount
	}
	if cfg.StripeSize > 0 {
		info.StripeSize = cfg.StripeSize
		info.StripeUnit = cfg.StripeSize
	}
	if !fio.Exists(ctx, dataRoot) {
		if err := fio.MkdirAll(ctx, dataRoot, 0o755); err != nil {
			return FSInfo{}, wrapErr(0, "FSProbe.Probe", dataRoot, err)
		}
	}
	return info, nil
}

// Open opens path via the probe's configured hook, defaulting to
// os.OpenFile when none was set.
func (p *FSProbe) Open(path string, flag int, perm os.FileMode) (*os.File, error) {
	if p.OpenHook != nil {
		return p.OpenHook(path, flag, perm)
	}
	return os.OpenFile(path, flag, perm)
}

// DirectOpenHook opens path with O_DIRECT via directio, bypassing the page
// cache. Only suitable for callers that write through directio.AlignedBlock
// buffers at block-size-aligned offsets and lengths; every other caller
// should keep the default buffered OpenHook.
func DirectOpenHook(path string, flag int, perm os.FileMode) (*os.File, error) {
	return directio.OpenFile(path, flag, perm)
}
