package renderer

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
)

func cacheBlob(t *testing.T, header pipelineCacheHeader, payload int) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, header); err != nil {
		t.Fatal(err)
	}
	buf.Write(make([]byte, payload))
	return buf.Bytes()
}

func TestCheckPipelineCacheHeader(t *testing.T) {
	pd := &gpu.PhysicalDevice{
		VendorID:          0x10de,
		DeviceID:          0x2484,
		PipelineCacheUUID: uuid.MustParse("6b6f5a3e-1f5a-4c1d-9a52-1f0b0c3f7e21"),
	}
	valid := pipelineCacheHeader{
		Length:   pipelineCacheHeaderSize,
		Version:  pipelineCacheHeaderVersionOne,
		VendorID: pd.VendorID,
		DeviceID: pd.DeviceID,
		UUID:     pd.PipelineCacheUUID,
	}

	tests := []struct {
		name   string
		modify func(*pipelineCacheHeader)
		ok     bool
	}{
		{"matching", func(*pipelineCacheHeader) {}, true},
		{"other driver build", func(h *pipelineCacheHeader) { h.UUID = uuid.New() }, false},
		{"other vendor", func(h *pipelineCacheHeader) { h.VendorID = 0x1002 }, false},
		{"other device", func(h *pipelineCacheHeader) { h.DeviceID++ }, false},
		{"unknown version", func(h *pipelineCacheHeader) { h.Version = 2 }, false},
		{"short header", func(h *pipelineCacheHeader) { h.Length = 4 }, false},
		{"header past the data", func(h *pipelineCacheHeader) { h.Length = 1 << 20 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := valid
			tt.modify(&header)
			err := checkPipelineCacheHeader(cacheBlob(t, header, 64), pd)
			if tt.ok && err != nil {
				t.Fatalf("rejected: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrPipelineCacheMismatch) {
				t.Fatalf("error = %v, want ErrPipelineCacheMismatch", err)
			}
		})
	}
}

func TestCheckPipelineCacheHeaderTruncated(t *testing.T) {
	pd := &gpu.PhysicalDevice{}
	for _, n := range []int{0, 3, 20} {
		err := checkPipelineCacheHeader(make([]byte, n), pd)
		if !errors.Is(err, ErrPipelineCacheMismatch) {
			t.Errorf("%d bytes: error = %v", n, err)
		}
	}
}
