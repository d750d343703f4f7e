package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/x448/float16"
)

func f32Bytes(vs ...float32) []byte {
	bts := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(bts[i*4:], math.Float32bits(v))
	}
	return bts
}

func f16Bytes(vs ...float32) []byte {
	bts := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(bts[i*2:], float16.Fromfloat32(v).Bits())
	}
	return bts
}

func TestSaveOpenRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.safetensors")

	err := SaveFile(p, []NamedTensor{
		{Name: "a", DType: "F32", Shape: []uint64{2}, Data: f32Bytes(1, 2)},
		{Name: "b", DType: "F32", Shape: []uint64{1}, Data: f32Bytes(3)},
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if names := f.Tensors(); !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("Tensors() = %v, want [a b]", names)
	}

	a, err := f.Float32s("a")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a, []float32{1, 2}) {
		t.Errorf("a = %v, want [1 2]", a)
	}

	b, err := f.Float32s("b")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(b, []float32{3}) {
		t.Errorf("b = %v, want [3]", b)
	}
}

func TestOpenDecodesHalfPrecision(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.safetensors")

	err := SaveFile(p, []NamedTensor{
		{Name: "w", DType: "F16", Shape: []uint64{2, 2}, Data: f16Bytes(0.5, -1, 2, 4)},
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := f.Float32s("w")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []float32{0.5, -1, 2, 4}) {
		t.Errorf("w = %v, want [0.5 -1 2 4]", got)
	}
}

func TestFloat32Row(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.safetensors")

	err := SaveFile(p, []NamedTensor{
		{Name: "w", DType: "F32", Shape: []uint64{3, 2}, Data: f32Bytes(1, 2, 3, 4, 5, 6)},
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	row, err := f.Float32Row("w", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(row, []float32{3, 4}) {
		t.Errorf("row 1 = %v, want [3 4]", row)
	}

	if _, err := f.Float32Row("w", 3); err == nil {
		t.Error("expected error for out of range row")
	}
	if _, err := f.Float32Row("w", -1); err == nil {
		t.Error("expected error for negative row")
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "nope.safetensors")); err == nil {
		t.Error("expected error for missing file")
	}

	truncated := filepath.Join(dir, "truncated.safetensors")
	if err := os.WriteFile(truncated, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(truncated); err == nil {
		t.Error("expected error for truncated file")
	}

	garbage := filepath.Join(dir, "garbage.safetensors")
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data, 8)
	copy(data[8:], "notjson!")
	if err := os.WriteFile(garbage, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(garbage); err == nil {
		t.Error("expected error for malformed header")
	}
}

func TestOpenUnknownTensor(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.safetensors")

	err := SaveFile(p, []NamedTensor{
		{Name: "a", DType: "F32", Shape: []uint64{1}, Data: f32Bytes(1)},
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Float32s("missing"); err == nil {
		t.Error("expected error for unknown tensor")
	}
}

func TestSaveRejectsInconsistentShape(t *testing.T) {
	err := SaveFile(filepath.Join(t.TempDir(), "bad.safetensors"), []NamedTensor{
		{Name: "a", DType: "F32", Shape: []uint64{3}, Data: f32Bytes(1, 2)},
	})
	if err == nil {
		t.Error("expected error for data inconsistent with shape")
	}
}

func TestSaveRejectsDuplicateNames(t *testing.T) {
	err := SaveFile(filepath.Join(t.TempDir(), "dup.safetensors"), []NamedTensor{
		{Name: "a", DType: "F32", Shape: []uint64{1}, Data: f32Bytes(1)},
		{Name: "a", DType: "F32", Shape: []uint64{1}, Data: f32Bytes(2)},
	})
	if err == nil {
		t.Error("expected error for duplicate tensor name")
	}
}
