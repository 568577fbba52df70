package posix

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hio-engine/libhio"
)

// ToFilePathFunc formats a data file's identity into a path under a
// dataset instance's base directory. Applications can override PathBuilder's
// DataFile field to control physical file placement and partitioning,
// mirroring the pluggable path-formatting hook this engine's basic mode
// otherwise hardcodes.
type ToFilePathFunc func(basePath string, fileID int64) string

// PathBuilder derives every on-disk path the posix engine touches from a
// data root, a context name, a dataset name/id, and (for file_per_node and
// strided modes) a physical file id. One PathBuilder is shared by every
// dataset instance a module opens.
type PathBuilder struct {
	DataRoot    string
	ContextName string

	// DataFile formats a physical data file's path; defaults to
	// DefaultDataFilePath. Override to change partitioning without touching
	// the rest of the engine.
	DataFile ToFilePathFunc
}

// NewPathBuilder returns a PathBuilder rooted at dataRoot for the named context.
func NewPathBuilder(dataRoot, contextName string) *PathBuilder {
	return &PathBuilder{DataRoot: dataRoot, ContextName: contextName, DataFile: DefaultDataFilePath}
}

// DatasetDir returns "{root}/{context}.hio/{name}/{id}", the directory
// holding everything for one dataset instance.
func (p *PathBuilder) DatasetDir(name string, id int64) string {
	return filepath.Join(p.DataRoot, p.ContextName+".hio", name, strconv.FormatInt(id, 10))
}

// DatasetsDir returns the parent directory enumerated by dataset_list:
// "{root}/{context}.hio/{name}".
func (p *PathBuilder) DatasetsDir(name string) string {
	return filepath.Join(p.DataRoot, p.ContextName+".hio", name)
}

// CanonicalManifestPath returns the merged, dataset-wide manifest the node
// leader writes at close: uncompressed "manifest.json" directly under the
// dataset instance directory.
func (p *PathBuilder) CanonicalManifestPath(datasetDir string) string {
	return filepath.Join(datasetDir, "manifest.json")
}

// LegacyCanonicalManifestPath returns the bzip2-compressed canonical
// manifest name an older tool may have left behind. This engine never
// writes this form, only reads it when CanonicalManifestPath is absent.
func (p *PathBuilder) LegacyCanonicalManifestPath(datasetDir string) string {
	return p.CanonicalManifestPath(datasetDir) + ".bz2"
}

// ManifestPath returns the path of one rank's manifest file under a dataset
// instance's directory, including the compression suffix. ext is "" for an
// uncompressed manifest, "lz4" for this engine's write codec, or "bz2" for
// the legacy read-only codec. rank is hex-formatted with no zero padding.
func (p *PathBuilder) ManifestPath(datasetDir string, rank int, ext string) string {
	base := fmt.Sprintf("manifest.%x.json", rank)
	if ext != "" {
		base += "." + ext
	}
	return filepath.Join(datasetDir, base)
}

// BasicElementPath returns an element's data file path under FileModeBasic.
// A Shared-mode dataset gives every rank the same logical offset space, so
// all ranks write the one file "element_data.<name>". A Unique-mode
// dataset gives each rank a private offset space, so each rank gets its own
// file: "element_data.<name>.<rank:05d>".
func (p *PathBuilder) BasicElementPath(datasetDir, element string, mode libhio.DatasetMode, rank int) string {
	if mode == libhio.Shared {
		return filepath.Join(datasetDir, "element_data."+element)
	}
	return filepath.Join(datasetDir, fmt.Sprintf("element_data.%s.%05d", element, rank))
}

// DefaultDataFilePath formats a FileModeFilePerNode/FileModeStrided data
// file's path: a flat "data.<hex>" file directly under the dataset instance
// directory, one per reservation-engine block id.
func DefaultDataFilePath(basePath string, fileID int64) string {
	return filepath.Join(basePath, fmt.Sprintf("data.%x", fileID))
}
