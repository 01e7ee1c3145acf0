package present

import (
	"math/rand"
	"testing"
)

func TestFrameSyncPairs(t *testing.T) {
	for k := 1; k <= 4; k++ {
		s := newFrameSync(k)
		if s.pairCount() != k+1 {
			t.Errorf("k=%d: pairCount = %d", k, s.pairCount())
		}
		if s.freeCount() != k+1 || s.assigned() != 0 {
			t.Errorf("k=%d: fresh state free=%d assigned=%d", k, s.freeCount(), s.assigned())
		}
	}
}

func TestFrameSyncImageSlots(t *testing.T) {
	s := newFrameSync(2)
	s.reset(5)

	want := []int{0, 1, 0, 1, 0}
	for image, slot := range want {
		got, err := s.slotFor(image)
		if err != nil {
			t.Fatal(err)
		}
		if got != slot {
			t.Errorf("image %d -> slot %d, want %d", image, got, slot)
		}
	}
	if _, err := s.slotFor(5); err == nil {
		t.Error("image outside the swapchain accepted")
	}
}

func TestFrameSyncAssignFreesPrevious(t *testing.T) {
	s := newFrameSync(2)
	s.reset(3)

	first, _ := s.takePair()
	s.assign(0, first)
	second, _ := s.takePair()
	s.assign(0, second)

	if s.pairOf(0) != second {
		t.Errorf("slot 0 holds pair %d, want %d", s.pairOf(0), second)
	}
	if s.freeCount()+s.assigned() != s.pairCount() {
		t.Errorf("free=%d assigned=%d, want total %d", s.freeCount(), s.assigned(), s.pairCount())
	}
	// The freed pair goes to the back of the queue.
	for i := 0; i < s.freeCount()-1; i++ {
		if _, err := s.takePair(); err != nil {
			t.Fatal(err)
		}
	}
	last, _ := s.takePair()
	if last != first {
		t.Errorf("last free pair = %d, want %d", last, first)
	}
}

func TestFrameSyncReturnPair(t *testing.T) {
	s := newFrameSync(3)
	s.reset(3)

	pair, _ := s.takePair()
	s.returnPair(pair)
	again, _ := s.takePair()
	if again != pair {
		t.Errorf("returned pair %d not reused first, got %d", pair, again)
	}
	if s.freeCount() != s.pairCount()-1 {
		t.Errorf("free = %d", s.freeCount())
	}
}

func TestFrameSyncExhausted(t *testing.T) {
	s := newFrameSync(1)
	s.takePair()
	s.takePair()
	if _, err := s.takePair(); err == nil {
		t.Error("took a third pair with one slot")
	}
}

// TestFrameSyncSimulated drives the bookkeeping against a model of the GPU and the
// presentation engine: images come back in arbitrary order, submissions complete at
// random, acquires fail with out-of-date and the swapchain is rebuilt at random sizes.
func TestFrameSyncSimulated(t *testing.T) {
	for k := 1; k <= 4; k++ {
		rng := rand.New(rand.NewSource(int64(k)))
		s := newFrameSync(k)
		imageCount := k + 1
		s.reset(imageCount)

		// slot -> pair of the submission still executing on the GPU.
		pending := map[int]int{}

		for frame := 0; frame < 5000; frame++ {
			switch r := rng.Intn(100); {
			case r < 2:
				// Recreation waits for the device to go idle.
				pending = map[int]int{}
				imageCount = 2 + rng.Intn(4)
				s.reset(imageCount)
			case r < 40:
				for slot := range pending {
					if rng.Intn(2) == 0 {
						delete(pending, slot)
					}
				}
			}

			pair, err := s.takePair()
			if err != nil {
				t.Fatalf("k=%d frame %d: %v", k, frame, err)
			}
			for slot, busy := range pending {
				if busy == pair {
					t.Fatalf("k=%d frame %d: pair %d still used by slot %d", k, frame, pair, slot)
				}
			}
			for slot := 0; slot < k; slot++ {
				if s.pairOf(slot) == pair {
					t.Fatalf("k=%d frame %d: pair %d still assigned to slot %d", k, frame, pair, slot)
				}
			}

			if rng.Intn(50) == 0 {
				s.returnPair(pair)
				continue
			}

			slot, err := s.slotFor(rng.Intn(imageCount))
			if err != nil {
				t.Fatal(err)
			}
			// Waiting on the slot fence retires its previous submission.
			delete(pending, slot)
			s.assign(slot, pair)
			pending[slot] = pair

			if got := s.freeCount() + s.assigned(); got != s.pairCount() {
				t.Fatalf("k=%d frame %d: free+assigned = %d, want %d", k, frame, got, s.pairCount())
			}
			if len(pending) > k {
				t.Fatalf("k=%d frame %d: %d submissions in flight", k, frame, len(pending))
			}
		}
	}
}
