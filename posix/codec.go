package posix

import (
	"bytes"
	"compress/bzip2"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/hio-engine/libhio"
)

// encodeManifest marshals m to JSON and applies the requested write
// compression. Go's standard library only ever shipped a bzip2 decoder, not
// an encoder, so CompressionNone/CompressionLZ4 are this engine's two write
// paths; a manifest already on disk as .bz2 is still read by decodeManifest,
// just never written that way again.
func encodeManifest(compression libhio.ManifestCompression, m Manifest) ([]byte, error) {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if compression != libhio.CompressionLZ4 {
		return raw, nil
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeManifest decodes raw per the extension on path: ".lz4" and ".bz2"
// are decompressed first, anything else is treated as plain JSON.
func decodeManifest(path string, raw []byte) (Manifest, error) {
	var jsonBytes []byte
	switch {
	case strings.HasSuffix(path, ".lz4"):
		r := lz4.NewReader(bytes.NewReader(raw))
		decoded, err := io.ReadAll(r)
		if err != nil {
			return Manifest{}, fmt.Errorf("decoding lz4 manifest %s: %w", path, err)
		}
		jsonBytes = decoded
	case strings.HasSuffix(path, ".bz2"):
		decoded, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return Manifest{}, fmt.Errorf("decoding legacy bz2 manifest %s: %w", path, err)
		}
		jsonBytes = decoded
	default:
		jsonBytes = raw
	}

	var m Manifest
	if err := json.Unmarshal(jsonBytes, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}
