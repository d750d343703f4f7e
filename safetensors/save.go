package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// NamedTensor is a tensor prepared for serialization: raw little-endian
// bytes plus the descriptor fields written to the header.
type NamedTensor struct {
	Name  string
	DType string
	Shape []uint64
	Data  []byte
}

// Save writes tensors as a safetensors container. Tensor names must be
// unique; the header table is emitted in sorted name order.
func Save(w io.Writer, tensors []NamedTensor) error {
	header := make(map[string]TensorInfo, len(tensors))

	var offset uint64
	for _, t := range tensors {
		if _, ok := header[t.Name]; ok {
			return fmt.Errorf("duplicate tensor name %q", t.Name)
		}

		size, err := dtypeSize(t.DType)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", t.Name, err)
		}
		if uint64(len(t.Data)) != t.elements()*size {
			return fmt.Errorf("tensor %q: %d bytes inconsistent with shape %v", t.Name, len(t.Data), t.Shape)
		}

		header[t.Name] = TensorInfo{
			DType:       t.DType,
			Shape:       t.Shape,
			DataOffsets: [2]uint64{offset, offset + uint64(len(t.Data))},
		}
		offset += uint64(len(t.Data))
	}

	bts, err := json.Marshal(header)
	if err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}
	if _, err := w.Write(bts); err != nil {
		return err
	}

	// data offsets were assigned in input order, so the data region must be
	// written in input order too
	for _, t := range tensors {
		if _, err := w.Write(t.Data); err != nil {
			return err
		}
	}

	return nil
}

// SaveFile writes tensors to path via Save.
func SaveFile(path string, tensors []NamedTensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Save(f, tensors); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func (t NamedTensor) elements() uint64 {
	n := uint64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}
