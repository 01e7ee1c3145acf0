package gpu

import (
	"sync"

	"github.com/FilipHusnjak/Neon-sub000/internal/ref"
)

// Releasable is anything whose destruction can be deferred onto a command buffer.
type Releasable interface {
	Release()
}

// StaleResource keeps a resource alive until the command buffer that last referenced it
// is known to have completed. Release runs the destructor at most once.
type StaleResource struct {
	once    sync.Once
	release func()
}

// NewStaleResource retains counted and releases that reference when the stale resource
// is released. Callers drop their own reference afterwards as usual.
func NewStaleResource(counted ref.Counted) *StaleResource {
	counted.AddRef()
	return &StaleResource{release: counted.Release}
}

// ReleaseFunc wraps an arbitrary destructor.
func ReleaseFunc(fn func()) *StaleResource {
	return &StaleResource{release: fn}
}

func (s *StaleResource) Release() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// SplitRelease returns n stale resources sharing r. r is released once all of them have
// been released, in any order.
func SplitRelease(r Releasable, n int) []*StaleResource {
	if n < 1 {
		n = 1
	}
	count := &ref.Count{}
	count.Init(r.Release)
	for i := 1; i < n; i++ {
		count.AddRef()
	}

	parts := make([]*StaleResource, n)
	for i := range parts {
		parts[i] = ReleaseFunc(count.Release)
	}
	return parts
}
