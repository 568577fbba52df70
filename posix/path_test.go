package posix

import (
	"path/filepath"
	"testing"

	"github.com/hio-engine/libhio"
)

func TestPathBuilderDatasetDir(t *testing.T) {
	pb := NewPathBuilder("/data", "sim")
	got := pb.DatasetDir("checkpoint", 42)
	want := filepath.Join("/data", "sim.hio", "checkpoint", "42")
	if got != want {
		t.Fatalf("DatasetDir() = %q, want %q", got, want)
	}
}

func TestPathBuilderDatasetsDir(t *testing.T) {
	pb := NewPathBuilder("/data", "sim")
	got := pb.DatasetsDir("checkpoint")
	want := filepath.Join("/data", "sim.hio", "checkpoint")
	if got != want {
		t.Fatalf("DatasetsDir() = %q, want %q", got, want)
	}
}

func TestPathBuilderManifestPathExtensions(t *testing.T) {
	pb := NewPathBuilder("/data", "sim")
	dir := pb.DatasetDir("checkpoint", 1)

	cases := map[string]string{
		"":    filepath.Join(dir, "manifest.1b.json"),
		"lz4": filepath.Join(dir, "manifest.1b.json.lz4"),
		"bz2": filepath.Join(dir, "manifest.1b.json.bz2"),
	}
	for ext, want := range cases {
		if got := pb.ManifestPath(dir, 27, ext); got != want {
			t.Errorf("ManifestPath(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestPathBuilderCanonicalManifestPath(t *testing.T) {
	pb := NewPathBuilder("/data", "sim")
	dir := pb.DatasetDir("checkpoint", 1)
	want := filepath.Join(dir, "manifest.json")
	if got := pb.CanonicalManifestPath(dir); got != want {
		t.Fatalf("CanonicalManifestPath() = %q, want %q", got, want)
	}
	wantLegacy := want + ".bz2"
	if got := pb.LegacyCanonicalManifestPath(dir); got != wantLegacy {
		t.Fatalf("LegacyCanonicalManifestPath() = %q, want %q", got, wantLegacy)
	}
}

func TestPathBuilderBasicElementPath(t *testing.T) {
	pb := NewPathBuilder("/data", "sim")
	dir := pb.DatasetDir("checkpoint", 1)

	shared := pb.BasicElementPath(dir, "restart", libhio.Shared, 3)
	wantShared := filepath.Join(dir, "element_data.restart")
	if shared != wantShared {
		t.Fatalf("BasicElementPath(Shared) = %q, want %q", shared, wantShared)
	}

	unique := pb.BasicElementPath(dir, "restart", libhio.Unique, 3)
	wantUnique := filepath.Join(dir, "element_data.restart.00003")
	if unique != wantUnique {
		t.Fatalf("BasicElementPath(Unique) = %q, want %q", unique, wantUnique)
	}
}

func TestDefaultDataFilePathIsFlatHex(t *testing.T) {
	p1 := DefaultDataFilePath("/data/ds", 3)
	want1 := filepath.Join("/data/ds", "data.3")
	if p1 != want1 {
		t.Fatalf("DefaultDataFilePath(3) = %q, want %q", p1, want1)
	}

	p2 := DefaultDataFilePath("/data/ds", 255)
	want2 := filepath.Join("/data/ds", "data.ff")
	if p2 != want2 {
		t.Fatalf("DefaultDataFilePath(255) = %q, want %q", p2, want2)
	}
	if filepath.Dir(p1) != filepath.Dir(p2) {
		t.Fatalf("data files must be flat under basePath, no shard subdirectory: %q vs %q", p1, p2)
	}
}
