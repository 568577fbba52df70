package hio

import "time"

// DatasetMode is the offset-space semantics for a dataset instance.
type DatasetMode int

const (
	// Unique gives each rank a private logical offset space per element.
	Unique DatasetMode = iota
	// Shared gives every rank the same logical offset space per element.
	Shared
)

func (m DatasetMode) String() string {
	if m == Shared {
		return "SHARED"
	}
	return "UNIQUE"
}

// DatasetFlags is a bitset over the open semantics a dataset instance was opened with.
type DatasetFlags uint32

const (
	FlagRead DatasetFlags = 1 << iota
	FlagWrite
	FlagCreate
	FlagTruncate
	FlagAppend
)

func (f DatasetFlags) Has(bit DatasetFlags) bool { return f&bit != 0 }

// DatasetStatus is the dataset lifecycle state.
type DatasetStatus int

const (
	StatusNew DatasetStatus = iota
	StatusOpen
	StatusClosing
	StatusClosed
	StatusFailed
)

func (s DatasetStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusOpen:
		return "OPEN"
	case StatusClosing:
		return "CLOSING"
	case StatusClosed:
		return "CLOSED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// DatasetHeader is the tuple persisted at the top of a manifest, enough to
// list instances without loading their segment tables.
type DatasetHeader struct {
	Name         string    `json:"name"`
	ID           int64     `json:"id"`
	Mode         DatasetMode `json:"mode"`
	FileMode     FileMode  `json:"file_mode"`
	BlockSize    int64     `json:"block_size"`
	StripeCount  int       `json:"stripe_count"`
	StripeSize   int64     `json:"stripe_size"`
	CreationTime time.Time `json:"creation_time"`
}

// Dataset is the public handle for an open dataset instance. The
// mutex-guarded counters and state live here; the segment-map/open-file-cache
// internals a backend needs are kept behind the opaque Backend field so a
// Module implementation can attach whatever state it needs without hio
// needing to know its shape (the same separation database/sql draws between
// sql.DB and a driver.Conn).
type Dataset struct {
	DatasetHeader

	Module Module

	Flags   DatasetFlags
	BasePath string

	Status   DatasetStatus
	OpenTime time.Time

	BytesWritten int64
	BytesRead    int64
	WriteUsec    int64
	ReadUsec     int64

	// FirstError is the first fatal error observed on this dataset; recorded
	// once and never overwritten.
	FirstError error

	// Backend is opaque to callers; it is owned and type-asserted only by the
	// Module that opened this dataset (e.g. posix's *instance, which also
	// holds the per-dataset mutex serialising entry points).
	Backend any
}

// RecordFirstError stores err as the dataset's first fatal error and marks
// it Failed, if no error has been recorded yet.
func (d *Dataset) RecordFirstError(err error) {
	if d.FirstError == nil && err != nil {
		d.FirstError = err
		d.Status = StatusFailed
	}
}
