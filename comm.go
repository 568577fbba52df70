package hio

import "context"

// Communicator is the single interface every collective operation in the
// dataset engine goes through: the dataset communicator (all ranks), the
// shared communicator (ranks on one node), or the leader communicator (one
// designated leader per node) are each just a Communicator value. Expressing
// the MPI/non-MPI split this way keeps no compile-time flag leaking into the
// core algorithm; a single-process Communicator is trivial to implement and
// is all this repo ships.
type Communicator interface {
	// Size returns the number of ranks in this communicator.
	Size() int
	// Rank returns this process's rank within the communicator.
	Rank() int
	// SharedSize returns the number of ranks sharing a node with this one.
	SharedSize() int
	// SharedRank returns this process's rank within its node-local group.
	SharedRank() int
	// IsLeader reports whether this rank is the node leader.
	IsLeader() bool
	// Barrier blocks every rank until all have entered.
	Barrier(ctx context.Context) error
	// Broadcast sends data from root to every rank, returning what was
	// received (root receives its own input back unchanged).
	Broadcast(ctx context.Context, root int, data []byte) ([]byte, error)
	// Scatter distributes chunks[i] to rank i, returning this rank's chunk.
	// len(chunks) must equal Size() when called on the scattering root; other
	// ranks may pass nil.
	Scatter(ctx context.Context, root int, chunks [][]byte) ([]byte, error)
	// AllreduceMin returns the minimum of value across every rank, observed
	// identically by all of them — used at dataset close so every rank
	// agrees on the collective return code.
	AllreduceMin(ctx context.Context, value int) (int, error)
}

// singleProcessComm is the trivial Communicator used when a Context is not
// given one explicitly: one rank, one node, that rank is its own leader.
type singleProcessComm struct{}

// NewSingleProcessCommunicator returns the degenerate one-rank Communicator.
func NewSingleProcessCommunicator() Communicator { return singleProcessComm{} }

func (singleProcessComm) Size() int       { return 1 }
func (singleProcessComm) Rank() int       { return 0 }
func (singleProcessComm) SharedSize() int { return 1 }
func (singleProcessComm) SharedRank() int { return 0 }
func (singleProcessComm) IsLeader() bool  { return true }

func (singleProcessComm) Barrier(ctx context.Context) error {
	return ctx.Err()
}

func (singleProcessComm) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	return data, ctx.Err()
}

func (singleProcessComm) Scatter(ctx context.Context, root int, chunks [][]byte) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, ctx.Err()
	}
	return chunks[0], ctx.Err()
}

func (singleProcessComm) AllreduceMin(ctx context.Context, value int) (int, error) {
	return value, ctx.Err()
}
