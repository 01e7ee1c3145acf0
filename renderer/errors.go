package renderer

import "github.com/cockroachdb/errors"

var (
	ErrUnsupportedAPI        = errors.New("rendering API not supported")
	ErrFrameNotStarted       = errors.New("no frame in progress")
	ErrPipelineCacheMismatch = errors.New("pipeline cache data belongs to another device or driver")
)
