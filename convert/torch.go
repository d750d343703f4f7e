package convert

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/x448/float16"

	"github.com/cedrugs/embeddy/safetensors"
)

// parseTorch unpickles a legacy pytorch checkpoint and converts every
// tensor in it to raw little-endian bytes with a safetensors dtype.
func parseTorch(path string) ([]safetensors.NamedTensor, error) {
	m, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error unpickling %s: %w", path, err)
	}

	var keys []any
	var get func(k any) (any, bool)
	switch d := m.(type) {
	case *types.Dict:
		keys = d.Keys()
		get = d.Get
	case *types.OrderedDict:
		for k := range d.Map {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})
		get = d.Get
	default:
		return nil, fmt.Errorf("unexpected checkpoint structure %T in %s", m, path)
	}

	var ts []safetensors.NamedTensor
	for _, k := range keys {
		name, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("non-string tensor name %v in %s", k, path)
		}

		v, _ := get(k)
		t, ok := v.(*pytorch.Tensor)
		if !ok {
			// non-tensor entries such as version markers are skipped
			continue
		}

		shape := make([]uint64, len(t.Size))
		n := 1
		for i, dim := range t.Size {
			shape[i] = uint64(dim)
			n *= dim
		}

		dtype, data, err := encodeStorage(t, n)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}

		ts = append(ts, safetensors.NamedTensor{
			Name:  name,
			DType: dtype,
			Shape: shape,
			Data:  data,
		})
	}

	return ts, nil
}

// encodeStorage re-encodes the unpickled storage as little-endian bytes,
// preserving the checkpoint's on-disk dtype.
func encodeStorage(t *pytorch.Tensor, n int) (string, []byte, error) {
	offset := int(t.StorageOffset)

	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		data := make([]byte, n*4)
		for i, v := range s.Data[offset : offset+n] {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
		return "F32", data, nil
	case *pytorch.HalfStorage:
		data := make([]byte, n*2)
		for i, v := range s.Data[offset : offset+n] {
			binary.LittleEndian.PutUint16(data[i*2:], float16.Fromfloat32(v).Bits())
		}
		return "F16", data, nil
	case *pytorch.BFloat16Storage:
		return "BF16", bfloat16.EncodeFloat32(s.Data[offset : offset+n]), nil
	case *pytorch.DoubleStorage:
		data := make([]byte, n*8)
		for i, v := range s.Data[offset : offset+n] {
			binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
		}
		return "F64", data, nil
	case *pytorch.IntStorage:
		data := make([]byte, n*4)
		for i, v := range s.Data[offset : offset+n] {
			binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
		}
		return "I32", data, nil
	case *pytorch.LongStorage:
		data := make([]byte, n*8)
		for i, v := range s.Data[offset : offset+n] {
			binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
		}
		return "I64", data, nil
	default:
		return "", nil, fmt.Errorf("unsupported storage type %T", t.Source)
	}
}
