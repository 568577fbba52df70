package posix

import (
	"context"
	"sort"
	"strconv"

	"github.com/hio-engine/libhio"
)

// list enumerates every dataset instance directory under name and returns
// the header of each one's canonical manifest. Each manifest is decoded in
// full, segment tables included; only the headers are kept.
func (m *module) list(ctx context.Context, name string) ([]libhio.DatasetHeader, error) {
	dir := m.paths.DatasetsDir(name)
	if !m.fio.Exists(ctx, dir) {
		return nil, nil
	}
	entries, err := m.fio.ReadDir(ctx, dir)
	if err != nil {
		return nil, wrapErr(m.rank(), "DatasetList", dir, err)
	}

	var headers []libhio.DatasetHeader
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		datasetDir := m.paths.DatasetDir(name, id)
		manifest, err := loadManifest(ctx, m.fio, m.paths, datasetDir)
		if err != nil {
			continue // a partially-written or corrupt instance is skipped, not fatal to the listing.
		}
		headers = append(headers, manifest.Header)
	}

	sort.Slice(headers, func(i, j int) bool { return headers[i].ID < headers[j].ID })
	return headers, nil
}
