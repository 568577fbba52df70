package posix

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"testing"

	"github.com/hio-engine/libhio"
)

func sampleManifest() Manifest {
	return Manifest{
		Header: libhio.DatasetHeader{Name: "ckpt", ID: 7, BlockSize: 4096, StripeCount: 1},
		Elements: []ElementManifest{
			{Name: "restart", Rank: 0, Size: 100, Segments: []Segment{{LogicalOffset: 0, Length: 100, FileID: 0, PhysicalOffset: 0}}},
		},
	}
}

func TestManifestCodecRoundTripsUncompressed(t *testing.T) {
	m := sampleManifest()
	raw, err := encodeManifest(libhio.CompressionNone, m)
	if err != nil {
		t.Fatalf("encodeManifest: %v", err)
	}
	got, err := decodeManifest("manifest.0.json", raw)
	if err != nil {
		t.Fatalf("decodeManifest: %v", err)
	}
	if got.Header.Name != m.Header.Name || got.Elements[0].Name != "restart" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestManifestCodecRoundTripsLZ4(t *testing.T) {
	m := sampleManifest()
	raw, err := encodeManifest(libhio.CompressionLZ4, m)
	if err != nil {
		t.Fatalf("encodeManifest: %v", err)
	}
	got, err := decodeManifest("manifest.0.json.lz4", raw)
	if err != nil {
		t.Fatalf("decodeManifest: %v", err)
	}
	if got.Elements[0].Segments[0].Length != 100 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

// TestManifestCodecDecodesLegacyBzip2 uses the system bzip2 binary (if
// present) to produce a real .bz2 payload, confirming decodeManifest reads
// the legacy format without this engine ever needing to write it.
func TestManifestCodecDecodesLegacyBzip2(t *testing.T) {
	if _, err := exec.LookPath("bzip2"); err != nil {
		t.Skip("bzip2 binary not available in this environment")
	}
	m := sampleManifest()
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	cmd := exec.Command("bzip2", "-c")
	cmd.Stdin = bytes.NewReader(raw)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		t.Skipf("bzip2 invocation failed: %v", err)
	}

	got, err := decodeManifest("manifest.0.json.bz2", out.Bytes())
	if err != nil {
		t.Fatalf("decodeManifest legacy bz2: %v", err)
	}
	if got.Header.ID != 7 {
		t.Fatalf("legacy decode mismatch: %+v", got)
	}
}
