package hio

// Element is the public handle for an open logical file inside a dataset
// instance, identified by (dataset, name, rank). Segment-map and
// direct-handle state live behind Backend, owned by the Module that opened it.
type Element struct {
	Name string
	Rank int

	// Size is the high-water logical offset written so far.
	Size int64

	Dataset *Dataset

	// Backend is opaque to callers; owned and type-asserted only by the
	// Module that opened this element (its segment map, any direct *os.File).
	Backend any
}
