package tensor

import "fmt"

// DeviceType represents the compute device family.
type DeviceType uint8

const (
	CPU DeviceType = iota
	CUDA
	ROCm
	Metal
)

func (d DeviceType) String() string {
	names := [...]string{"cpu", "cuda", "rocm", "metal"}
	if int(d) < len(names) {
		return names[d]
	}
	return fmt.Sprintf("device(%d)", d)
}

// Device identifies a specific device (type + index).
type Device struct {
	Type  DeviceType
	Index int // GPU index, 0 for CPU
}

// CPU0 is the default host device.
var CPU0 = Device{Type: CPU, Index: 0}

func CUDADevice(index int) Device { return Device{Type: CUDA, Index: index} }

func (d Device) String() string {
	if d.Type == CPU {
		return "cpu"
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}
