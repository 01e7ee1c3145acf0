package present

import "github.com/cockroachdb/errors"

// frameSync is the bookkeeping behind semaphore reuse.
//
// There are k frame slots, each with a fence and a command buffer, and k+1 semaphore
// pairs. Swapchain images map onto slots round-robin, so the slot of a frame is only known
// once an image has been acquired, and the pair used for the acquire has to be chosen
// before that. A pair is taken from the free list for every acquire and assigned to the
// acquired image's slot. The pair the slot held before goes back to the free list once
// the slot's fence has been waited, which proves the submission using it has completed.
//
// Between frames every pair is either free or assigned to exactly one slot.
type frameSync struct {
	slots int

	free      []int
	slotPair  []int
	imageSlot []int
}

func newFrameSync(framesInFlight int) *frameSync {
	s := &frameSync{slots: framesInFlight}
	s.reset(0)
	return s
}

// pairCount is the number of semaphore pairs the scheme needs.
func (s *frameSync) pairCount() int {
	return s.slots + 1
}

// reset rebuilds the maps for a swapchain with imageCount images. All pairs become free;
// callers must know that no GPU work still uses them.
func (s *frameSync) reset(imageCount int) {
	s.imageSlot = make([]int, imageCount)
	for i := range s.imageSlot {
		s.imageSlot[i] = i % s.slots
	}

	s.slotPair = make([]int, s.slots)
	for i := range s.slotPair {
		s.slotPair[i] = -1
	}

	s.free = s.free[:0]
	for i := 0; i < s.pairCount(); i++ {
		s.free = append(s.free, i)
	}
}

// takePair removes the oldest free pair.
func (s *frameSync) takePair() (int, error) {
	if len(s.free) == 0 {
		return -1, errors.AssertionFailedf("no free semaphore pair with %d slots", s.slots)
	}
	pair := s.free[0]
	s.free = s.free[1:]
	return pair, nil
}

// returnPair puts back a pair whose acquire did not signal its semaphore.
func (s *frameSync) returnPair(pair int) {
	s.free = append([]int{pair}, s.free...)
}

// slotFor returns the frame slot that owns image.
func (s *frameSync) slotFor(image int) (int, error) {
	if image < 0 || image >= len(s.imageSlot) {
		return -1, errors.AssertionFailedf("image index %d outside swapchain of %d images", image, len(s.imageSlot))
	}
	return s.imageSlot[image], nil
}

// assign records that slot now uses pair and frees the pair it used before. Call it only
// after the slot's fence has been waited.
func (s *frameSync) assign(slot, pair int) {
	if old := s.slotPair[slot]; old >= 0 {
		s.free = append(s.free, old)
	}
	s.slotPair[slot] = pair
}

func (s *frameSync) pairOf(slot int) int {
	return s.slotPair[slot]
}

func (s *frameSync) assigned() int {
	n := 0
	for _, pair := range s.slotPair {
		if pair >= 0 {
			n++
		}
	}
	return n
}

func (s *frameSync) freeCount() int {
	return len(s.free)
}
