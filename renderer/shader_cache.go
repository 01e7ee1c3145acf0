package renderer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/FilipHusnjak/Neon-sub000/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

const (
	spirvMagic  uint32 = 0x07230203
	spirvTarget        = "vulkan1.2"
)

var shaderNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("neon.shader-cache"))

// shaderKey names the cached bytecode of the shader at path built for target.
func shaderKey(path, target string) uuid.UUID {
	return uuid.NewSHA1(shaderNamespace, []byte(path+"\x00"+target))
}

// bytesToBytecode reinterprets little-endian SPIR-V as words.
func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, errors.Newf("SPIR-V module of %d bytes is not word aligned", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	if byteCode[0] != spirvMagic {
		return nil, errors.Newf("bad SPIR-V magic 0x%08x", byteCode[0])
	}
	return byteCode, nil
}

// StageSource names the SPIR-V file for one pipeline stage.
type StageSource struct {
	Stage core1_0.ShaderStageFlags
	Path  string
}

// ShaderStage is loaded bytecode for one pipeline stage.
type ShaderStage struct {
	Stage core1_0.ShaderStageFlags
	Code  []uint32
}

// ShaderCache loads SPIR-V from a source file system and keeps it in memory. When a
// cache directory is configured every loaded module is mirrored there, and modules
// missing from the source are served from the mirror.
type ShaderCache struct {
	source fs.FS
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	loaded map[uuid.UUID][]uint32
}

func NewShaderCache(source fs.FS, dir string, logger *slog.Logger) *ShaderCache {
	return &ShaderCache{
		source: source,
		dir:    dir,
		logger: logging.OrDiscard(logger),
		loaded: map[uuid.UUID][]uint32{},
	}
}

func (c *ShaderCache) mirrorPath(key uuid.UUID) string {
	return filepath.Join(c.dir, key.String()+".spv")
}

// Load returns the bytecode of the module at path.
func (c *ShaderCache) Load(path string) ([]uint32, error) {
	key := shaderKey(path, spirvTarget)

	c.mu.Lock()
	code, ok := c.loaded[key]
	c.mu.Unlock()
	if ok {
		return code, nil
	}

	data, err := fs.ReadFile(c.source, path)
	fromSource := err == nil
	if errors.Is(err, fs.ErrNotExist) && c.dir != "" {
		data, err = os.ReadFile(c.mirrorPath(key))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}

	code, err = bytesToBytecode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}

	if fromSource && c.dir != "" {
		if err := c.mirror(key, data); err != nil {
			c.logger.Warn("could not mirror shader", slog.String("Path", path), slog.Any("error", err))
		}
	}

	c.mu.Lock()
	c.loaded[key] = code
	c.mu.Unlock()

	c.logger.Debug("loaded shader",
		slog.String("Path", path),
		slog.String("Key", key.String()),
		slog.Bool("FromSource", fromSource))
	return code, nil
}

func (c *ShaderCache) mirror(key uuid.UUID, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.mirrorPath(key), data, 0o644)
}

// LoadStages loads every stage concurrently. Stages come back in the order given.
func (c *ShaderCache) LoadStages(ctx context.Context, sources ...StageSource) ([]ShaderStage, error) {
	stages := make([]ShaderStage, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		i, source := i, source
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			code, err := c.Load(source.Path)
			if err != nil {
				return err
			}
			stages[i] = ShaderStage{Stage: source.Stage, Code: code}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stages, nil
}
