package pass

import (
	"github.com/FilipHusnjak/Neon-sub000/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// FramebufferPool tracks live framebuffers so a window resize can reach all of them. It
// does not own them: Remove before destroying a framebuffer.
type FramebufferPool struct {
	logger       *slog.Logger
	framebuffers map[uuid.UUID]*Framebuffer
	order        []uuid.UUID
}

func NewFramebufferPool(logger *slog.Logger) *FramebufferPool {
	return &FramebufferPool{
		logger:       logging.OrDiscard(logger),
		framebuffers: map[uuid.UUID]*Framebuffer{},
	}
}

// Add registers fb. Adding a framebuffer twice is a no-op.
func (p *FramebufferPool) Add(fb *Framebuffer) {
	if _, ok := p.framebuffers[fb.id]; ok {
		return
	}
	p.framebuffers[fb.id] = fb
	p.order = append(p.order, fb.id)
}

// Remove unregisters fb and reports whether it was registered.
func (p *FramebufferPool) Remove(fb *Framebuffer) bool {
	if _, ok := p.framebuffers[fb.id]; !ok {
		return false
	}
	delete(p.framebuffers, fb.id)
	for i, id := range p.order {
		if id == fb.id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

func (p *FramebufferPool) Get(id uuid.UUID) (*Framebuffer, bool) {
	fb, ok := p.framebuffers[id]
	return fb, ok
}

// All returns the registered framebuffers in registration order.
func (p *FramebufferPool) All() []*Framebuffer {
	out := make([]*Framebuffer, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.framebuffers[id])
	}
	return out
}

func (p *FramebufferPool) Len() int {
	return len(p.framebuffers)
}

// ResizeAll resizes every registered framebuffer in registration order. Every
// framebuffer is attempted; failures are combined into the returned error.
func (p *FramebufferPool) ResizeAll(width, height int) error {
	var result error
	for _, id := range p.order {
		fb := p.framebuffers[id]
		if err := fb.Resize(width, height, false); err != nil {
			result = errors.CombineErrors(result, errors.Wrapf(err, "resize framebuffer %s", id))
		}
	}
	p.logger.Debug("resized framebuffers",
		slog.Int("Count", len(p.order)),
		slog.Int("Width", width),
		slog.Int("Height", height))
	return result
}
