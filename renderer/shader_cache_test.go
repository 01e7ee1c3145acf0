package renderer

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// spirv returns a minimal word stream that starts with the SPIR-V magic.
func spirv(words ...uint32) []byte {
	words = append([]uint32{spirvMagic}, words...)
	b := make([]byte, 0, len(words)*4)
	for _, w := range words {
		b = append(b, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	return b
}

func TestBytesToBytecode(t *testing.T) {
	code, err := bytesToBytecode(spirv(0x00010500, 7))
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 3 || code[0] != spirvMagic || code[1] != 0x00010500 || code[2] != 7 {
		t.Errorf("bytecode = %#x", code)
	}

	if _, err := bytesToBytecode([]byte{1, 2, 3, 4, 5}); err == nil {
		t.Error("unaligned module accepted")
	}
	if _, err := bytesToBytecode([]byte{1, 2, 3, 4}); err == nil {
		t.Error("bad magic accepted")
	}
	if _, err := bytesToBytecode(nil); err == nil {
		t.Error("empty module accepted")
	}
}

func TestShaderKey(t *testing.T) {
	if shaderKey("mesh.vert.spv", spirvTarget) != shaderKey("mesh.vert.spv", spirvTarget) {
		t.Error("key not deterministic")
	}
	if shaderKey("mesh.vert.spv", spirvTarget) == shaderKey("mesh.frag.spv", spirvTarget) {
		t.Error("different paths share a key")
	}
	if shaderKey("mesh.vert.spv", "vulkan1.0") == shaderKey("mesh.vert.spv", spirvTarget) {
		t.Error("different targets share a key")
	}
}

func TestShaderCacheMirror(t *testing.T) {
	dir := t.TempDir()
	source := fstest.MapFS{
		"quad.vert.spv": {Data: spirv(1)},
		"quad.frag.spv": {Data: spirv(2)},
	}

	cache := NewShaderCache(source, dir, nil)
	stages, err := cache.LoadStages(context.Background(),
		StageSource{Stage: core1_0.StageVertex, Path: "quad.vert.spv"},
		StageSource{Stage: core1_0.StageFragment, Path: "quad.frag.spv"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 2 || stages[0].Stage != core1_0.StageVertex || stages[1].Code[1] != 2 {
		t.Fatalf("stages out of order: %+v", stages)
	}

	if _, err := os.Stat(cache.mirrorPath(shaderKey("quad.vert.spv", spirvTarget))); err != nil {
		t.Fatalf("vertex stage not mirrored: %v", err)
	}

	// A fresh cache without the sources serves the mirrored copies.
	offline := NewShaderCache(fstest.MapFS{}, dir, nil)
	code, err := offline.Load("quad.frag.spv")
	if err != nil {
		t.Fatal(err)
	}
	if code[1] != 2 {
		t.Errorf("mirrored code = %#x", code)
	}
}

func TestShaderCacheMissing(t *testing.T) {
	cache := NewShaderCache(fstest.MapFS{"ok.spv": {Data: spirv()}}, "", nil)
	_, err := cache.LoadStages(context.Background(),
		StageSource{Stage: core1_0.StageVertex, Path: "ok.spv"},
		StageSource{Stage: core1_0.StageFragment, Path: "missing.spv"},
	)
	if err == nil {
		t.Fatal("missing stage loaded")
	}
}
