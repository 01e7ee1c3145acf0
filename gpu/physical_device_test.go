package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	qG = core1_0.QueueGraphics
	qC = core1_0.QueueCompute
	qT = core1_0.QueueTransfer
)

func TestSelectQueueFamilies(t *testing.T) {
	tests := []struct {
		name     string
		families []core1_0.QueueFlags
		want     QueueFamilyIndices
	}{
		{
			name:     "single universal family",
			families: []core1_0.QueueFlags{qG | qC | qT},
			want:     QueueFamilyIndices{Graphics: 0, Compute: 0, Transfer: 0},
		},
		{
			name:     "dedicated compute and transfer",
			families: []core1_0.QueueFlags{qG | qC | qT, qC | qT, qT},
			want:     QueueFamilyIndices{Graphics: 0, Compute: 1, Transfer: 2},
		},
		{
			name:     "dedicated compute only",
			families: []core1_0.QueueFlags{qG | qC | qT, qC | qT},
			want:     QueueFamilyIndices{Graphics: 0, Compute: 1, Transfer: 0},
		},
		{
			name:     "graphics not first",
			families: []core1_0.QueueFlags{qT, qG | qC | qT},
			want:     QueueFamilyIndices{Graphics: 1, Compute: 1, Transfer: 0},
		},
		{
			name:     "transfer implied only by later family",
			families: []core1_0.QueueFlags{qG, qC, qT | qC},
			want:     QueueFamilyIndices{Graphics: 0, Compute: 1, Transfer: 2},
		},
		{
			name:     "no family reports transfer",
			families: []core1_0.QueueFlags{qG | qC, qC},
			want:     QueueFamilyIndices{Graphics: 0, Compute: 1, Transfer: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectQueueFamilies(tt.families, qG|qC|qT)
			if err != nil {
				t.Fatalf("SelectQueueFamilies() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectQueueFamilies() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSelectQueueFamiliesMissing(t *testing.T) {
	_, err := SelectQueueFamilies([]core1_0.QueueFlags{qT}, qG|qT)
	if !errors.Is(err, ErrQueueFamilyNotFound) {
		t.Fatalf("error = %v, want ErrQueueFamilyNotFound", err)
	}

	got, err := SelectQueueFamilies([]core1_0.QueueFlags{qT}, qT)
	if err != nil {
		t.Fatalf("transfer-only request error = %v", err)
	}
	if got.Graphics != -1 || got.Compute != -1 || got.Transfer != 0 {
		t.Errorf("transfer-only request = %+v", got)
	}
}

func TestSelectQueueFamiliesImplicitTransfer(t *testing.T) {
	got, err := SelectQueueFamilies([]core1_0.QueueFlags{qC}, qT)
	if err != nil {
		t.Fatalf("compute family without the transfer flag: error = %v", err)
	}
	if got.Transfer != 0 {
		t.Errorf("transfer family = %d, want the compute family 0", got.Transfer)
	}

	got, err = SelectQueueFamilies([]core1_0.QueueFlags{qG}, qC|qT)
	if !errors.Is(err, ErrQueueFamilyNotFound) {
		t.Fatalf("missing compute: got %+v, error = %v", got, err)
	}
}

func TestQueueFamilyIndicesUnique(t *testing.T) {
	tests := []struct {
		in   QueueFamilyIndices
		want []int
	}{
		{QueueFamilyIndices{0, 0, 0}, []int{0}},
		{QueueFamilyIndices{0, 1, 0}, []int{0, 1}},
		{QueueFamilyIndices{0, 1, 2}, []int{0, 1, 2}},
		{QueueFamilyIndices{2, -1, 2}, []int{2}},
	}
	for _, tt := range tests {
		got := tt.in.Unique()
		if len(got) != len(tt.want) {
			t.Fatalf("Unique(%+v) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Unique(%+v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}

func TestChooseDepthFormat(t *testing.T) {
	only := func(formats ...core1_0.Format) func(core1_0.Format) bool {
		return func(f core1_0.Format) bool {
			for _, o := range formats {
				if o == f {
					return true
				}
			}
			return false
		}
	}

	tests := []struct {
		name      string
		supported func(core1_0.Format) bool
		want      core1_0.Format
	}{
		{"everything", func(core1_0.Format) bool { return true }, core1_0.FormatD32SignedFloatS8UnsignedInt},
		{"only D16", only(core1_0.FormatD16UnsignedNormalized), core1_0.FormatD16UnsignedNormalized},
		{"D24S8 over D16", only(core1_0.FormatD16UnsignedNormalized, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt), core1_0.FormatD24UnsignedNormalizedS8UnsignedInt},
		{"D32 over D24S8", only(core1_0.FormatD32SignedFloat, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt), core1_0.FormatD32SignedFloat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChooseDepthFormat(tt.supported)
			if err != nil {
				t.Fatalf("ChooseDepthFormat() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ChooseDepthFormat() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := ChooseDepthFormat(only()); !errors.Is(err, ErrNoDepthFormat) {
		t.Errorf("no supported format error = %v, want ErrNoDepthFormat", err)
	}
}

func TestHasStencil(t *testing.T) {
	if !HasStencil(core1_0.FormatD24UnsignedNormalizedS8UnsignedInt) {
		t.Error("D24S8 reported without stencil")
	}
	if HasStencil(core1_0.FormatD32SignedFloat) {
		t.Error("D32 reported with stencil")
	}
}

func TestMemoryTypeIndex(t *testing.T) {
	types := []core1_0.MemoryPropertyFlags{
		core1_0.MemoryPropertyDeviceLocal,
		core1_0.MemoryPropertyHostVisible,
		core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
	}
	hostCoherent := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

	tests := []struct {
		name     string
		typeBits uint32
		want     core1_0.MemoryPropertyFlags
		index    int
	}{
		{"device local", 0b111, core1_0.MemoryPropertyDeviceLocal, 0},
		{"first host visible", 0b111, core1_0.MemoryPropertyHostVisible, 1},
		{"coherent subset", 0b111, hostCoherent, 2},
		{"type bits exclude first match", 0b100, core1_0.MemoryPropertyHostVisible, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MemoryTypeIndex(types, tt.typeBits, tt.want)
			if err != nil {
				t.Fatalf("MemoryTypeIndex() error = %v", err)
			}
			if got != tt.index {
				t.Errorf("MemoryTypeIndex() = %d, want %d", got, tt.index)
			}
		})
	}

	if _, err := MemoryTypeIndex(types, 0b001, hostCoherent); !errors.Is(err, ErrNoMemoryType) {
		t.Errorf("error = %v, want ErrNoMemoryType", err)
	}
}

func TestChoosePhysicalDevice(t *testing.T) {
	tests := []struct {
		name  string
		types []core1_0.PhysicalDeviceType
		want  int
	}{
		{"none", nil, -1},
		{"discrete preferred", []core1_0.PhysicalDeviceType{core1_0.PhysicalDeviceTypeIntegratedGPU, core1_0.PhysicalDeviceTypeDiscreteGPU}, 1},
		{"first enumerated fallback", []core1_0.PhysicalDeviceType{core1_0.PhysicalDeviceTypeCPU, core1_0.PhysicalDeviceTypeIntegratedGPU}, 0},
	}
	for _, tt := range tests {
		if got := choosePhysicalDevice(tt.types); got != tt.want {
			t.Errorf("%s: choosePhysicalDevice() = %d, want %d", tt.name, got, tt.want)
		}
	}
}
