package posix

import "sync"

// maxStripeFileSize bounds how large one stripe's current data file is
// allowed to grow before the reservation engine rolls over to a new file
// id, keeping any single physical file within a size a single node's
// filesystem handles comfortably.
const maxStripeFileSize = 64 * 1024 * 1024 * 1024 // 64 GiB

// stripeCursor is one stripe's allocation cursor: the file id currently
// being filled and the next free physical offset within it.
type stripeCursor struct {
	mu     sync.Mutex
	nextID int64 // next unused file id for this stripe, monotonically increasing.
	fileID int64
	offset int64
}

// SharedControl is the reservation engine's allocation state: one cursor
// per stripe. In a true MPI build this block lives in a memory-mapped
// segment shared by every rank on a node; this single-process engine keeps
// the same per-stripe-mutex cursor shape in ordinary process memory, since
// every rank here is just a goroutine sharing the same address space.
type SharedControl struct {
	stripes []*stripeCursor
}

// NewSharedControl returns a SharedControl with one cursor per stripe,
// stripe i's first file id seeded at i.
func NewSharedControl(stripeCount int) *SharedControl {
	if stripeCount < 1 {
		stripeCount = 1
	}
	sc := &SharedControl{stripes: make([]*stripeCursor, stripeCount)}
	for i := range sc.stripes {
		sc.stripes[i] = &stripeCursor{fileID: int64(i), nextID: int64(i) + int64(stripeCount)}
	}
	return sc
}

// StripedOffset implements the stripe-interleave formula for
// FileModeStrided: block sIndex of a logical stream lands in stripe
// myStripe's slot of file-wide block sIndex, so consecutive logical blocks
// round-robin across every stripe's file before repeating. stripeCount==1
// degenerates to a plain sequential layout through the same formula.
func StripedOffset(sIndex, myStripe, stripeCount int, blockSize int64) int64 {
	return int64(sIndex)*int64(stripeCount)*blockSize + int64(myStripe)*blockSize
}

// reserve allocates size bytes from stripe's cursor, returning the file id
// and physical offset the caller should write to. Rolling over to a new
// file id when the current one would exceed maxStripeFileSize; the new
// file id advances by the stripe count so file ids for a given stripe never
// collide with another stripe's.
func (sc *SharedControl) reserve(stripe int, size int64) (fileID, offset int64) {
	c := sc.stripes[stripe%len(sc.stripes)]
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.offset+size > maxStripeFileSize {
		c.fileID = c.nextID
		c.nextID += int64(len(sc.stripes))
		c.offset = 0
	}
	fileID = c.fileID
	offset = c.offset
	c.offset += size
	return
}
