// Package tensor provides the typed, shaped, device-located numeric buffers
// shared by the pool and graph caches.
//
// A Tensor is the minimal abstraction the caches need: byte storage plus
// shape/dtype/device metadata, in-place copy, fill, and independent clone.
// Real device memory sits behind the Allocator interface; the host allocator
// included here is the reference implementation used by tests and by the
// serving loop when no accelerator is present.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/google/uuid"
)

// Tensor is a numeric buffer with shape/dtype/device metadata.
//
// Storage is always addressable from the host in this implementation; the
// device field is carried so keys derived from a tensor never collide across
// devices and so a device-backed Allocator can slot in without API changes.
type Tensor struct {
	id    string
	shape Shape
	dtype DType
	dev   Device
	data  []byte
}

// New allocates a zeroed tensor. The shape is cloned, not retained.
func New(shape Shape, dtype DType, dev Device) *Tensor {
	return &Tensor{
		id:    uuid.New().String(),
		shape: shape.Clone(),
		dtype: dtype,
		dev:   dev,
		data:  make([]byte, shape.NumElements()*dtype.Size()),
	}
}

// ID returns a unique identifier for this allocation (log correlation).
func (t *Tensor) ID() string { return t.id }

// Shape returns the tensor's shape. Callers must not mutate it.
func (t *Tensor) Shape() Shape { return t.shape }

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Device returns the device this tensor lives on.
func (t *Tensor) Device() Device { return t.dev }

// NumBytes returns the total storage size in bytes.
func (t *Tensor) NumBytes() int { return len(t.data) }

// Data returns the underlying byte storage.
func (t *Tensor) Data() []byte { return t.data }

// Matches reports whether src has the same shape and dtype as t.
func (t *Tensor) Matches(src *Tensor) bool {
	return t.dtype == src.dtype && t.shape.Equal(src.shape)
}

// CopyFrom overwrites t's contents element-wise from src.
// Shape and dtype must match exactly; device may differ (cross-device copy).
func (t *Tensor) CopyFrom(src *Tensor) error {
	if src == nil {
		return fmt.Errorf("tensor: copy from nil tensor")
	}
	if !t.Matches(src) {
		return fmt.Errorf("tensor: copy mismatch: dst %s %s, src %s %s",
			t.shape, t.dtype, src.shape, src.dtype)
	}
	copy(t.data, src.data)
	return nil
}

// Clone returns an independent copy: same shape/dtype/device, fresh storage.
// Mutating the clone never affects the original.
func (t *Tensor) Clone() *Tensor {
	c := New(t.shape, t.dtype, t.dev)
	copy(c.data, t.data)
	return c
}

// Fill overwrites every element with the given value, converted to the
// tensor's dtype.
func (t *Tensor) Fill(v float64) {
	es := t.dtype.Size()
	if len(t.data) == 0 {
		return
	}

	// Encode one element, then replicate the pattern.
	elem := make([]byte, es)
	switch t.dtype {
	case Float32:
		binary.LittleEndian.PutUint32(elem, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(elem, math.Float64bits(v))
	case Float16:
		binary.LittleEndian.PutUint16(elem, float16Bits(float32(v)))
	case BFloat16:
		binary.LittleEndian.PutUint16(elem, bfloat16Bits(float32(v)))
	case Int8:
		elem[0] = byte(int8(v))
	case Uint8:
		elem[0] = byte(uint8(v))
	case Bool:
		if v != 0 {
			elem[0] = 1
		}
	case Int16:
		binary.LittleEndian.PutUint16(elem, uint16(int16(v)))
	case Int32:
		binary.LittleEndian.PutUint32(elem, uint32(int32(v)))
	case Int64:
		binary.LittleEndian.PutUint64(elem, uint64(int64(v)))
	}

	for off := 0; off < len(t.data); off += es {
		copy(t.data[off:off+es], elem)
	}
}

// Float32s returns a typed view of the storage for Float32 tensors,
// or nil for any other dtype. The view aliases the tensor's storage.
func (t *Tensor) Float32s() []float32 {
	if t.dtype != Float32 || len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.shape.NumElements())
}

// Allocator creates device buffers. Real accelerator backends implement this
// over their own allocation APIs; Supported reports whether pooled
// allocation is usable at all on this backend.
type Allocator interface {
	Supported() bool
	Allocate(shape Shape, dtype DType, dev Device) (*Tensor, error)
}

// HostAllocator allocates plain host-memory tensors. Always supported.
type HostAllocator struct{}

func (HostAllocator) Supported() bool { return true }

func (HostAllocator) Allocate(shape Shape, dtype DType, dev Device) (*Tensor, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("tensor: invalid shape %s", shape)
	}
	return New(shape, dtype, dev), nil
}
