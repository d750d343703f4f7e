// Package safetensors reads and writes the safetensors weight container
// format: an 8-byte little-endian header length, a JSON table of named
// tensor descriptors, and a flat little-endian data region.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
	"golang.org/x/exp/maps"
)

// TensorInfo describes a single tensor in the header table.
// Endianness is little-endian, ordering is 'C'.
type TensorInfo struct {
	DType       string    `json:"dtype"`
	Shape       []uint64  `json:"shape"`
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// Elements returns the number of scalar elements described by the shape.
func (ti TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range ti.Shape {
		n *= d
	}
	return n
}

func dtypeSize(dtype string) (uint64, error) {
	switch dtype {
	case "F16", "BF16":
		return 2, nil
	case "F32", "I32":
		return 4, nil
	case "F64", "I64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unknown data type: %s", dtype)
	}
}

// File is a read-only, memory-mapped safetensors container. The File owns
// the mapping; buffers returned by Float32s and Float32Row are copies, so
// they remain valid after Close.
type File struct {
	path    string
	data    []byte
	mapping *mapping
	start   uint64 // byte offset of the data region
	tensors map[string]TensorInfo
	names   []string
}

// Open memory-maps the container at path read-only and parses its header.
func Open(path string) (*File, error) {
	m, err := open(path)
	if err != nil {
		return nil, err
	}

	f := &File{path: path, data: m.data, mapping: m}
	if err := f.parseHeader(); err != nil {
		m.close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return f, nil
}

func (f *File) parseHeader() error {
	if len(f.data) < 8 {
		return fmt.Errorf("truncated safetensors file")
	}

	n := binary.LittleEndian.Uint64(f.data[:8])
	if n > uint64(len(f.data))-8 {
		return fmt.Errorf("header length %d exceeds file size", n)
	}

	var header map[string]TensorInfo
	if err := json.Unmarshal(f.data[8:8+n], &header); err != nil {
		return fmt.Errorf("malformed header: %w", err)
	}
	delete(header, "__metadata__")

	f.start = 8 + n
	dataLen := uint64(len(f.data)) - f.start
	for name, info := range header {
		size, err := dtypeSize(info.DType)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}
		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin > end || end > dataLen {
			return fmt.Errorf("tensor %q: data offsets [%d, %d] out of range", name, begin, end)
		}
		if end-begin != info.Elements()*size {
			return fmt.Errorf("tensor %q: extent %d inconsistent with shape %v", name, end-begin, info.Shape)
		}
	}

	f.tensors = header
	f.names = maps.Keys(header)
	slices.Sort(f.names)
	return nil
}

// Tensors returns all tensor names in sorted order.
func (f *File) Tensors() []string {
	return f.names
}

// Info returns the descriptor for a named tensor without decoding values.
func (f *File) Info(name string) (TensorInfo, bool) {
	info, ok := f.tensors[name]
	return info, ok
}

func (f *File) raw(name string) (TensorInfo, []byte, error) {
	info, ok := f.tensors[name]
	if !ok {
		return TensorInfo{}, nil, fmt.Errorf("tensor %q not found in %s", name, f.path)
	}
	return info, f.data[f.start+info.DataOffsets[0] : f.start+info.DataOffsets[1]], nil
}

// Float32s decodes the full named tensor into a dense float32 buffer.
func (f *File) Float32s(name string) ([]float32, error) {
	info, raw, err := f.raw(name)
	if err != nil {
		return nil, err
	}
	return decodeFloat32(info.DType, raw)
}

// Float32Row decodes one row of a 2-D tensor. The container stays mapped;
// only the requested row is materialized.
func (f *File) Float32Row(name string, row int) ([]float32, error) {
	info, raw, err := f.raw(name)
	if err != nil {
		return nil, err
	}

	if len(info.Shape) != 2 {
		return nil, fmt.Errorf("tensor %q is not 2-dimensional: shape %v", name, info.Shape)
	}
	if row < 0 || uint64(row) >= info.Shape[0] {
		return nil, fmt.Errorf("row %d out of range for tensor %q with %d rows", row, name, info.Shape[0])
	}

	size, err := dtypeSize(info.DType)
	if err != nil {
		return nil, err
	}

	stride := info.Shape[1] * size
	begin := uint64(row) * stride
	return decodeFloat32(info.DType, raw[begin:begin+stride])
}

func decodeFloat32(dtype string, raw []byte) ([]float32, error) {
	switch dtype {
	case "F32":
		f32s := make([]float32, len(raw)/4)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return f32s, nil
	case "F16":
		f32s := make([]float32, len(raw)/2)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return f32s, nil
	case "BF16":
		return bfloat16.DecodeFloat32(raw), nil
	case "F64":
		f32s := make([]float32, len(raw)/8)
		for i := range f32s {
			f32s[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
		return f32s, nil
	default:
		return nil, fmt.Errorf("cannot decode data type %s to float32", dtype)
	}
}

// Close unmaps the container. Decoded buffers stay valid.
func (f *File) Close() error {
	f.data = nil
	f.tensors = nil
	return f.mapping.close()
}

// Exists reports whether a readable file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
