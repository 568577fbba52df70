package posix

import "testing"

func TestReservationEngineGivesDisjointRanges(t *testing.T) {
	control := NewSharedControl(1)
	re := NewReservationEngine(control, 1)

	seen := make(map[int64]bool)
	var fileID int64
	var offset int64
	for i := 0; i < 10; i++ {
		fid, off := re.Reserve(0, 1024)
		if i == 0 {
			fileID, offset = fid, off
		}
		key := fid*1_000_000_000 + off
		if seen[key] {
			t.Fatalf("reservation %d reused a (file_id, offset) pair: file %d offset %d", i, fid, off)
		}
		seen[key] = true
	}
	_ = fileID
	_ = offset
}

func TestReservationEngineRoundRobinsStripes(t *testing.T) {
	control := NewSharedControl(4)
	re := NewReservationEngine(control, 4)

	fid0, _ := re.Reserve(0, 1024)
	fid1, _ := re.Reserve(1, 1024)
	if fid0 == fid1 {
		t.Fatalf("ranks on different stripes should not share a file id: rank0=%d rank1=%d", fid0, fid1)
	}
}

func TestReservationEngineCarryOverAvoidsRepeatedLargeReserves(t *testing.T) {
	control := NewSharedControl(1)
	re := NewReservationEngine(control, 1)

	fid0, off0 := re.Reserve(0, 100)
	fid1, off1 := re.Reserve(0, 100)
	if fid0 != fid1 {
		t.Fatalf("small writes from the same rank should draw from the same carry-over chunk")
	}
	if off1 != off0+100 {
		t.Fatalf("second small write should land right after the first: off0=%d off1=%d", off0, off1)
	}
}

func TestStripedOffsetInterleaves(t *testing.T) {
	const blockSize = 4096
	// Block 0 of stripe 0 and stripe 1 must not collide, and block 1 of
	// stripe 0 must land after every stripe's block 0.
	s0b0 := StripedOffset(0, 0, 2, blockSize)
	s1b0 := StripedOffset(0, 1, 2, blockSize)
	s0b1 := StripedOffset(1, 0, 2, blockSize)

	if s0b0 == s1b0 {
		t.Fatalf("stripe 0 and stripe 1 collided at block 0: %d", s0b0)
	}
	if s0b1 <= s1b0 {
		t.Fatalf("block 1 of stripe 0 (%d) should come after block 0 of every stripe (stripe1=%d)", s0b1, s1b0)
	}
}
