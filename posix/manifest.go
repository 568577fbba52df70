package posix

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hio-engine/libhio"
)

// ElementManifest is one element's persisted segment table plus its
// high-water size, keyed by rank under Manifest so a UNIQUE-mode dataset's
// per-rank offset spaces stay distinguishable after merge.
type ElementManifest struct {
	Name     string     `json:"name"`
	Rank     int        `json:"rank"`
	Size     int64      `json:"size"`
	Segments []Segment  `json:"segments"`
}

// Manifest is the full persisted state of one dataset instance: its header
// plus every element's segment table. A freshly-opened dataset starts from
// an empty Manifest; Close gathers each rank's in-memory elements into one
// and writes it out.
type Manifest struct {
	Header   libhio.DatasetHeader `json:"header"`
	Elements []ElementManifest    `json:"elements"`
}

// elementManifestsFromCache converts a rank's open elements (still holding
// their live *SegmentMap in Backend) into the manifest's flat element list.
func elementManifestsFromCache(rank int, elements map[string]*elementBackend) []ElementManifest {
	out := make([]ElementManifest, 0, len(elements))
	for name, eb := range elements {
		out = append(out, ElementManifest{
			Name:     name,
			Rank:     rank,
			Size:     eb.segments.Size(),
			Segments: eb.segments.Segments(),
		})
	}
	return out
}

// mergeManifests folds a set of per-rank manifests (one per rank that
// wrote during this open) into a single manifest for the dataset instance,
// concatenating each element's per-rank segment lists rather than
// interleaving them, since UNIQUE-mode ranks occupy disjoint logical
// offset spaces and SHARED-mode ranks write disjoint physical regions of
// the same logical space.
func mergeManifests(header libhio.DatasetHeader, parts []Manifest) Manifest {
	byName := make(map[string][]ElementManifest)
	var order []string
	for _, p := range parts {
		for _, em := range p.Elements {
			if _, ok := byName[em.Name]; !ok {
				order = append(order, em.Name)
			}
			byName[em.Name] = append(byName[em.Name], em)
		}
	}

	merged := Manifest{Header: header}
	for _, name := range order {
		parts := byName[name]
		sm := NewSegmentMap()
		var maxSize int64
		for _, em := range parts {
			part := &SegmentMap{}
			for _, s := range em.Segments {
				part.Add(s.LogicalOffset, s.Length, s.FileID, s.PhysicalOffset)
			}
			sm.Merge(part)
			if em.Size > maxSize {
				maxSize = em.Size
			}
		}
		merged.Elements = append(merged.Elements, ElementManifest{
			Name:     name,
			Rank:     -1, // merged manifest: no single owning rank.
			Size:     maxSize,
			Segments: sm.Segments(),
		})
	}
	return merged
}

// loadManifest reads and decodes the canonical, dataset-wide manifest.json
// for a dataset instance directory, falling back to the legacy
// bzip2-compressed form when the uncompressed one is absent.
func loadManifest(ctx context.Context, fio FileIO, paths *PathBuilder, datasetDir string) (Manifest, error) {
	candidates := []string{
		paths.CanonicalManifestPath(datasetDir),
		paths.LegacyCanonicalManifestPath(datasetDir),
	}
	var lastErr error
	for _, path := range candidates {
		if !fio.Exists(ctx, path) {
			continue
		}
		raw, err := fio.ReadFile(ctx, path)
		if err != nil {
			lastErr = err
			continue
		}
		return decodeManifest(path, raw)
	}
	if lastErr != nil {
		return Manifest{}, lastErr
	}
	return Manifest{}, fmt.Errorf("no manifest found under %s", datasetDir)
}

// loadRankManifest reads and decodes one rank's own manifest, trying this
// engine's write codec first, then the legacy read-only codec, then the
// uncompressed form. Used on reopen, before a canonical manifest.json has
// necessarily been merged, and by recovery tooling inspecting a single
// rank's segment table directly.
func loadRankManifest(ctx context.Context, fio FileIO, paths *PathBuilder, datasetDir string, rank int) (Manifest, error) {
	candidates := []string{
		paths.ManifestPath(datasetDir, rank, "lz4"),
		paths.ManifestPath(datasetDir, rank, "bz2"),
		paths.ManifestPath(datasetDir, rank, ""),
	}
	var lastErr error
	for _, path := range candidates {
		if !fio.Exists(ctx, path) {
			continue
		}
		raw, err := fio.ReadFile(ctx, path)
		if err != nil {
			lastErr = err
			continue
		}
		return decodeManifest(path, raw)
	}
	if lastErr != nil {
		return Manifest{}, lastErr
	}
	return Manifest{}, fmt.Errorf("no manifest found under %s for rank %d", datasetDir, rank)
}

// recoverLegacySegments rebuilds a segment map for an element whose
// manifest carries no segment table, by scanning basePath for the legacy
// fixed-size block naming convention "<element>_block.<bid>" an older tool
// may have left behind. This is read-only: the engine never writes this
// layout itself, only recognizes it when present.
func recoverLegacySegments(ctx context.Context, fio FileIO, basePath, element string, blockSize int64) (*SegmentMap, error) {
	entries, err := fio.ReadDir(ctx, basePath)
	if err != nil {
		return nil, err
	}
	sm := NewSegmentMap()
	prefix := element + "_block."
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		bidStr := strings.TrimPrefix(e.Name(), prefix)
		bid, err := strconv.ParseInt(bidStr, 10, 64)
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Size() == 0 {
			continue
		}
		sm.Add(bid*blockSize, fi.Size(), bid, 0)
	}
	return sm, nil
}

// saveManifest encodes m with the configured compression and writes it to
// rank's manifest path under datasetDir.
func saveManifest(ctx context.Context, fio FileIO, paths *PathBuilder, datasetDir string, rank int, compression libhio.ManifestCompression, m Manifest) error {
	ext := ""
	if compression == libhio.CompressionLZ4 {
		ext = "lz4"
	}
	path := paths.ManifestPath(datasetDir, rank, ext)
	raw, err := encodeManifest(compression, m)
	if err != nil {
		return err
	}
	return fio.WriteFile(ctx, path, raw, 0o644)
}

// collectRankManifests reads and decodes every per-rank manifest file left
// under datasetDir by any rank that wrote during this open, for the node
// leader to fold into a canonical manifest.json at close. Entries that are
// the canonical manifest itself (or its legacy compressed form) are skipped.
func collectRankManifests(ctx context.Context, fio FileIO, datasetDir string) ([]Manifest, error) {
	entries, err := fio.ReadDir(ctx, datasetDir)
	if err != nil {
		return nil, err
	}

	var parts []Manifest
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "manifest.") || name == "manifest.json" || name == "manifest.json.bz2" {
			continue
		}
		path := filepath.Join(datasetDir, name)
		raw, err := fio.ReadFile(ctx, path)
		if err != nil {
			continue // a rank's manifest mid-write or already rotated away isn't fatal to the merge.
		}
		m, err := decodeManifest(path, raw)
		if err != nil {
			continue
		}
		parts = append(parts, m)
	}
	return parts, nil
}

// saveCanonicalManifest writes m, uncompressed, to datasetDir's
// manifest.json. Only the node leader calls this, after merging every
// rank's per-rank manifest via mergeManifests.
func saveCanonicalManifest(ctx context.Context, fio FileIO, paths *PathBuilder, datasetDir string, m Manifest) error {
	raw, err := encodeManifest(libhio.CompressionNone, m)
	if err != nil {
		return err
	}
	return fio.WriteFile(ctx, paths.CanonicalManifestPath(datasetDir), raw, 0o644)
}
