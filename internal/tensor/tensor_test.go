package tensor

import (
	"math"
	"strings"
	"testing"
)

// TestShapeKey verifies key derivation and the scalar special case.
func TestShapeKey(t *testing.T) {
	cases := []struct {
		shape Shape
		want  string
	}{
		{Shape{1, 3, 64, 64}, "1x3x64x64"},
		{Shape{7}, "7"},
		{Shape{}, "scalar"},
		{nil, "scalar"},
	}
	for _, tc := range cases {
		if got := tc.shape.Key(); got != tc.want {
			t.Errorf("Shape%v.Key() = %q, want %q", tc.shape, got, tc.want)
		}
	}
}

// TestShapeEqualAndClone verifies equality is element-wise and clones are
// independent.
func TestShapeEqualAndClone(t *testing.T) {
	a := Shape{1, 3, 64, 64}
	b := Shape{1, 3, 64, 64}
	c := Shape{1, 3, 64, 128}

	if !a.Equal(b) {
		t.Error("Expected equal shapes to compare equal")
	}
	if a.Equal(c) {
		t.Error("Expected different shapes to compare unequal")
	}
	if a.Equal(Shape{1, 3, 64}) {
		t.Error("Expected different ranks to compare unequal")
	}

	clone := a.Clone()
	clone[0] = 99
	if a[0] != 1 {
		t.Error("Mutating clone affected original shape")
	}
}

// TestShapeValid verifies dimension validation.
func TestShapeValid(t *testing.T) {
	if !(Shape{1, 3}).Valid() {
		t.Error("Expected positive dims to be valid")
	}
	if (Shape{1, 0, 3}).Valid() {
		t.Error("Expected zero dim to be invalid")
	}
	if (Shape{-1}).Valid() {
		t.Error("Expected negative dim to be invalid")
	}
	if !(Shape{}).Valid() {
		t.Error("Expected empty shape to be a valid scalar")
	}
}

// TestDTypeSizes verifies element sizes used for storage math.
func TestDTypeSizes(t *testing.T) {
	cases := map[DType]int{
		Float16:  2,
		BFloat16: 2,
		Float32:  4,
		Float64:  8,
		Int8:     1,
		Int16:    2,
		Int32:    4,
		Int64:    8,
		Uint8:    1,
		Bool:     1,
	}
	for dt, want := range cases {
		if got := dt.Size(); got != want {
			t.Errorf("%s.Size() = %d, want %d", dt, got, want)
		}
	}
}

// TestNewTensorZeroed verifies fresh tensors have zeroed storage and the
// expected byte size.
func TestNewTensorZeroed(t *testing.T) {
	tn := New(Shape{2, 3}, Float32, CPU0)

	if tn.NumBytes() != 2*3*4 {
		t.Errorf("Expected 24 bytes, got %d", tn.NumBytes())
	}
	for i, b := range tn.Data() {
		if b != 0 {
			t.Fatalf("Expected zeroed storage, byte %d = %d", i, b)
		}
	}
	if tn.ID() == "" {
		t.Error("Expected non-empty tensor ID")
	}
}

// TestFillFloat32 verifies Fill writes every element.
func TestFillFloat32(t *testing.T) {
	tn := New(Shape{4, 4}, Float32, CPU0)
	tn.Fill(2.5)

	vals := tn.Float32s()
	if len(vals) != 16 {
		t.Fatalf("Expected 16 elements, got %d", len(vals))
	}
	for i, v := range vals {
		if v != 2.5 {
			t.Fatalf("Element %d = %v, want 2.5", i, v)
		}
	}
}

// TestFillFloat64 verifies Fill for 8-byte elements.
func TestFillFloat64(t *testing.T) {
	tn := New(Shape{3}, Float64, CPU0)
	tn.Fill(math.Pi)

	// Float32s view is nil for non-Float32 dtypes.
	if tn.Float32s() != nil {
		t.Error("Expected nil Float32s view for Float64 tensor")
	}
	if tn.NumBytes() != 24 {
		t.Errorf("Expected 24 bytes, got %d", tn.NumBytes())
	}
}

// TestCopyFromMismatch verifies copy rejects shape and dtype mismatches but
// accepts cross-device copies.
func TestCopyFromMismatch(t *testing.T) {
	dst := New(Shape{2, 2}, Float32, CPU0)

	if err := dst.CopyFrom(New(Shape{2, 3}, Float32, CPU0)); err == nil {
		t.Error("Expected error copying mismatched shape")
	}
	if err := dst.CopyFrom(New(Shape{2, 2}, Float64, CPU0)); err == nil {
		t.Error("Expected error copying mismatched dtype")
	}
	if err := dst.CopyFrom(nil); err == nil {
		t.Error("Expected error copying from nil")
	}

	src := New(Shape{2, 2}, Float32, CUDADevice(0))
	src.Fill(1.0)
	if err := dst.CopyFrom(src); err != nil {
		t.Errorf("Cross-device copy failed: %v", err)
	}
	if dst.Float32s()[0] != 1.0 {
		t.Error("Cross-device copy did not transfer contents")
	}
}

// TestCloneIndependence verifies mutating a clone never affects the original.
func TestCloneIndependence(t *testing.T) {
	orig := New(Shape{4}, Float32, CPU0)
	orig.Fill(1.0)

	clone := orig.Clone()
	clone.Fill(9.0)

	if orig.Float32s()[0] != 1.0 {
		t.Error("Mutating clone affected original storage")
	}
	if clone.ID() == orig.ID() {
		t.Error("Expected clone to have its own ID")
	}
	if !clone.Matches(orig) {
		t.Error("Expected clone to match original shape/dtype")
	}
}

// TestHostAllocator verifies allocation and shape validation.
func TestHostAllocator(t *testing.T) {
	var alloc HostAllocator
	if !alloc.Supported() {
		t.Fatal("Host allocator must always be supported")
	}

	tn, err := alloc.Allocate(Shape{1, 3}, Float32, CPU0)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if tn.NumBytes() != 12 {
		t.Errorf("Expected 12 bytes, got %d", tn.NumBytes())
	}

	if _, err := alloc.Allocate(Shape{0}, Float32, CPU0); err == nil {
		t.Error("Expected error for invalid shape")
	}
}

// TestDeviceString verifies device identifiers used in bucket keys.
func TestDeviceString(t *testing.T) {
	if got := CPU0.String(); got != "cpu" {
		t.Errorf("CPU0.String() = %q, want %q", got, "cpu")
	}
	if got := CUDADevice(1).String(); got != "cuda:1" {
		t.Errorf("CUDADevice(1).String() = %q, want %q", got, "cuda:1")
	}
}

// TestFloat16Rounding spot-checks the half-precision encoder against known
// bit patterns.
func TestFloat16Rounding(t *testing.T) {
	cases := []struct {
		in   float32
		want uint16
	}{
		{0, 0x0000},
		{1, 0x3C00},
		{2, 0x4000},
		{0.5, 0x3800},
		{-1, 0xBC00},
	}
	for _, tc := range cases {
		if got := float16Bits(tc.in); got != tc.want {
			t.Errorf("float16Bits(%v) = %#04x, want %#04x", tc.in, got, tc.want)
		}
	}
}

// TestBFloat16Bits verifies truncation to the upper half of the float32 bits.
func TestBFloat16Bits(t *testing.T) {
	if got := bfloat16Bits(1.0); got != 0x3F80 {
		t.Errorf("bfloat16Bits(1.0) = %#04x, want 0x3F80", got)
	}
	if got := bfloat16Bits(-2.0); got != 0xC000 {
		t.Errorf("bfloat16Bits(-2.0) = %#04x, want 0xC000", got)
	}
}

// TestShapeString verifies the human-readable form stays parenthesized so
// log lines read unambiguously.
func TestShapeString(t *testing.T) {
	s := Shape{1, 3, 64, 64}.String()
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		t.Errorf("Shape.String() = %q, want parenthesized form", s)
	}
}
