package posix

import (
	"context"
	"os"
	"testing"

	"github.com/hio-engine/libhio"
)

func newTestContext(t *testing.T) (*libhio.Context, string) {
	t.Helper()
	dir := t.TempDir()
	ctx := libhio.NewContext("test", nil)
	ctx.AddModule(NewModule(ctx, dir, "test"))
	return ctx, dir
}

func TestDatasetRoundTripBasicMode(t *testing.T) {
	ctx := context.Background()
	hc, _ := newTestContext(t)

	opts := libhio.DatasetOpenOptions{
		Mode:     libhio.Unique,
		Flags:    libhio.FlagWrite | libhio.FlagCreate,
		FileMode: libhio.FileModeBasic,
		Config:   libhio.DefaultConfig(),
	}
	ds, err := hc.DatasetOpen(ctx, "checkpoint", 1, opts)
	if err != nil {
		t.Fatalf("DatasetOpen: %v", err)
	}

	el, err := ds.Module.ElementOpen(ctx, ds, "restart")
	if err != nil {
		t.Fatalf("ElementOpen: %v", err)
	}

	payload := []byte("hello checkpoint")
	req := &libhio.Request{Op: libhio.OpWrite, Element: el, Offset: 0, Data: payload}
	if err := ds.Module.ProcessReqs(ctx, ds, []*libhio.Request{req}); err != nil {
		t.Fatalf("ProcessReqs write: %v", err)
	}
	if req.Result.Bytes != int64(len(payload)) {
		t.Fatalf("write transferred %d bytes, want %d", req.Result.Bytes, len(payload))
	}

	readBuf := make([]byte, len(payload))
	readReq := &libhio.Request{Op: libhio.OpRead, Element: el, Offset: 0, Data: readBuf}
	if err := ds.Module.ProcessReqs(ctx, ds, []*libhio.Request{readReq}); err != nil {
		t.Fatalf("ProcessReqs read: %v", err)
	}
	if string(readBuf) != string(payload) {
		t.Fatalf("read back %q, want %q", readBuf, payload)
	}

	if err := ds.Module.ElementClose(ctx, el); err != nil {
		t.Fatalf("ElementClose: %v", err)
	}
	if err := hc.DatasetClose(ctx, ds); err != nil {
		t.Fatalf("DatasetClose: %v", err)
	}

	headers, err := hc.List(ctx, "checkpoint")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(headers) != 1 || headers[0].ID != 1 {
		t.Fatalf("List() = %+v, want one header with id 1", headers)
	}
}

func TestDatasetReopenRecoversSegments(t *testing.T) {
	ctx := context.Background()
	hc, _ := newTestContext(t)

	open := func(flags libhio.DatasetFlags) *libhio.Dataset {
		ds, err := hc.DatasetOpen(ctx, "run", 5, libhio.DatasetOpenOptions{
			Flags: flags, FileMode: libhio.FileModeBasic, Config: libhio.DefaultConfig(),
		})
		if err != nil {
			t.Fatalf("DatasetOpen: %v", err)
		}
		return ds
	}

	ds := open(libhio.FlagWrite | libhio.FlagCreate)
	el, err := ds.Module.ElementOpen(ctx, ds, "state")
	if err != nil {
		t.Fatalf("ElementOpen: %v", err)
	}
	data := []byte("persisted state")
	req := &libhio.Request{Op: libhio.OpWrite, Element: el, Offset: 0, Data: data}
	if err := ds.Module.ProcessReqs(ctx, ds, []*libhio.Request{req}); err != nil {
		t.Fatalf("ProcessReqs: %v", err)
	}
	if err := hc.DatasetClose(ctx, ds); err != nil {
		t.Fatalf("DatasetClose: %v", err)
	}

	ds2 := open(libhio.FlagRead)
	el2, err := ds2.Module.ElementOpen(ctx, ds2, "state")
	if err != nil {
		t.Fatalf("reopen ElementOpen: %v", err)
	}
	if el2.Size != int64(len(data)) {
		t.Fatalf("reopened element size = %d, want %d", el2.Size, len(data))
	}
	if err := hc.DatasetClose(ctx, ds2); err != nil {
		t.Fatalf("DatasetClose: %v", err)
	}
}

func TestDatasetOpenFallsBackToBasicWhenOptimisedHasNoSharedBlock(t *testing.T) {
	ctx := context.Background()
	hc, dir := newTestContext(t)

	ds, err := hc.DatasetOpen(ctx, "opt", 1, libhio.DatasetOpenOptions{
		Mode: libhio.Shared, Flags: libhio.FlagWrite | libhio.FlagCreate,
		FileMode: libhio.FileModeFilePerNode, Config: libhio.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("DatasetOpen: %v", err)
	}
	// This engine's single-process Communicator always reports world_size
	// 1, so there is no shared control block to coordinate and the engine
	// must downgrade to basic mode rather than honoring file_per_node.
	if ds.FileMode != libhio.FileModeBasic {
		t.Fatalf("FileMode = %v, want fallback to FileModeBasic", ds.FileMode)
	}
	if err := hc.DatasetClose(ctx, ds); err != nil {
		t.Fatalf("DatasetClose: %v", err)
	}
	_ = dir
}

func TestDatasetOpenFallsBackToBasicForStridedUnique(t *testing.T) {
	ctx := context.Background()
	hc, _ := newTestContext(t)

	ds, err := hc.DatasetOpen(ctx, "strided-unique", 1, libhio.DatasetOpenOptions{
		Mode: libhio.Unique, Flags: libhio.FlagWrite | libhio.FlagCreate,
		FileMode: libhio.FileModeStrided, Config: libhio.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("DatasetOpen: %v", err)
	}
	if ds.FileMode != libhio.FileModeBasic {
		t.Fatalf("FileMode = %v, want fallback to FileModeBasic (strided requires shared mode)", ds.FileMode)
	}
	if err := hc.DatasetClose(ctx, ds); err != nil {
		t.Fatalf("DatasetClose: %v", err)
	}
}

func TestCloseWritesCanonicalManifestJSON(t *testing.T) {
	ctx := context.Background()
	hc, dir := newTestContext(t)

	ds, err := hc.DatasetOpen(ctx, "ckpt", 3, libhio.DatasetOpenOptions{
		Mode: libhio.Unique, Flags: libhio.FlagWrite | libhio.FlagCreate,
		FileMode: libhio.FileModeBasic, Config: libhio.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("DatasetOpen: %v", err)
	}
	el, err := ds.Module.ElementOpen(ctx, ds, "restart")
	if err != nil {
		t.Fatalf("ElementOpen: %v", err)
	}
	req := &libhio.Request{Op: libhio.OpWrite, Element: el, Offset: 0, Data: []byte("x")}
	if err := ds.Module.ProcessReqs(ctx, ds, []*libhio.Request{req}); err != nil {
		t.Fatalf("ProcessReqs: %v", err)
	}
	if err := hc.DatasetClose(ctx, ds); err != nil {
		t.Fatalf("DatasetClose: %v", err)
	}

	pb := NewPathBuilder(dir, "test")
	canonical := pb.CanonicalManifestPath(pb.DatasetDir("ckpt", 3))
	if _, err := os.Stat(canonical); err != nil {
		t.Fatalf("expected canonical manifest at %s: %v", canonical, err)
	}
}

func TestUnlinkRemovesDatasetTree(t *testing.T) {
	ctx := context.Background()
	hc, _ := newTestContext(t)

	ds, err := hc.DatasetOpen(ctx, "scratch", 9, libhio.DatasetOpenOptions{
		Flags: libhio.FlagWrite | libhio.FlagCreate, FileMode: libhio.FileModeBasic, Config: libhio.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("DatasetOpen: %v", err)
	}
	if err := hc.DatasetClose(ctx, ds); err != nil {
		t.Fatalf("DatasetClose: %v", err)
	}

	if err := hc.Unlink(ctx, "scratch", 9, libhio.UnlinkCurrent); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	headers, err := hc.List(ctx, "scratch")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(headers) != 0 {
		t.Fatalf("List() after Unlink = %+v, want empty", headers)
	}
}
