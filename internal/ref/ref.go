// Package ref provides the reference counting used to share GPU objects between the
// renderer and the components that merely observe them.
package ref

import "sync/atomic"

// Counted is an object whose lifetime is governed by a reference count.
type Counted interface {
	AddRef()
	Release()
}

// Count is embedded by reference-counted objects. It starts with a single reference owned
// by whoever called Init, and runs the destroy callback exactly once when the last
// reference is released.
type Count struct {
	refs      atomic.Int32
	destroyed atomic.Bool
	onZero    func()
}

// Init arms the counter with one reference and the callback to run at zero.
func (c *Count) Init(onZero func()) {
	c.refs.Store(1)
	c.destroyed.Store(false)
	c.onZero = onZero
}

func (c *Count) AddRef() {
	c.refs.Add(1)
}

func (c *Count) Release() {
	n := c.refs.Add(-1)
	if n < 0 {
		panic("ref: released more references than were held")
	}
	if n == 0 && c.destroyed.CompareAndSwap(false, true) && c.onZero != nil {
		c.onZero()
	}
}

// Refs reports the current number of references.
func (c *Count) Refs() int {
	return int(c.refs.Load())
}

// Destroyed reports whether the destroy callback has run.
func (c *Count) Destroyed() bool {
	return c.destroyed.Load()
}

// Ptr is a holder that owns one reference to its value.
type Ptr[T Counted] struct {
	value T
	held  bool
}

// NewPtr returns a holder owning a new reference to value.
func NewPtr[T Counted](value T) *Ptr[T] {
	p := &Ptr[T]{}
	p.Assign(value)
	return p
}

// Assign replaces the held value. The new value is retained before the old one is
// released, so assigning the value a holder already owns never drops it to zero.
func (p *Ptr[T]) Assign(value T) {
	value.AddRef()
	if p.held {
		p.value.Release()
	}
	p.value = value
	p.held = true
}

// Reset releases the held value, if any.
func (p *Ptr[T]) Reset() {
	if !p.held {
		return
	}
	var zero T
	old := p.value
	p.value = zero
	p.held = false
	old.Release()
}

func (p *Ptr[T]) Get() T {
	return p.value
}

func (p *Ptr[T]) Valid() bool {
	return p.held
}
