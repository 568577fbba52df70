package hio

import "context"

// Module is the capability interface a data-root backend implements — the
// Go re-expression of the function-pointer dispatch table of the original
// dataset engine (dataset_open, dataset_close, dataset_unlink, dataset_list,
// element_open, element_close, element_flush, element_complete,
// process_reqs, fini). A Context holds an ordered list of Modules, one per
// configured data root.
type Module interface {
	// DataRoot returns the directory (or other root identifier) this module is bound to.
	DataRoot() string

	// DatasetOpen opens or creates dataset instance (name, id) per opts and
	// returns the resulting Dataset. It drives the full open/create lifecycle.
	DatasetOpen(ctx context.Context, name string, id int64, opts DatasetOpenOptions) (*Dataset, error)
	// DatasetClose drains I/O, gathers/writes manifests, and barriers.
	DatasetClose(ctx context.Context, ds *Dataset) error
	// DatasetUnlink removes a dataset instance's on-disk tree. Executed
	// collectively but only rank 0 performs the actual removal.
	DatasetUnlink(ctx context.Context, name string, id int64) error
	// DatasetList enumerates dataset instances under name, returning their headers.
	DatasetList(ctx context.Context, name string) ([]DatasetHeader, error)

	// ElementOpen opens (creating the segment map / direct handle as needed
	// for the dataset's file mode) the named element for this rank.
	ElementOpen(ctx context.Context, ds *Dataset, name string) (*Element, error)
	// ElementClose releases any direct handle held by the element.
	ElementClose(ctx context.Context, el *Element) error
	// ElementFlush flushes any buffered element state to the backing store.
	ElementFlush(ctx context.Context, el *Element) error
	// ElementComplete waits for all outstanding I/O on the element and returns its current size.
	ElementComplete(ctx context.Context, el *Element) (int64, error)

	// ProcessReqs executes a batch of I/O requests against ds.
	ProcessReqs(ctx context.Context, ds *Dataset, reqs []*Request) error

	// Fini releases any module-wide resources (e.g. the shared control block). Called at context teardown.
	Fini(ctx context.Context) error
}

// DatasetOpenOptions are the inputs to DatasetOpen not already implied by (name, id).
type DatasetOpenOptions struct {
	Mode     DatasetMode
	Flags    DatasetFlags
	FileMode FileMode
	Config   Config
}
