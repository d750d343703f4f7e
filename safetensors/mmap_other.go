//go:build !linux && !darwin

package safetensors

import "os"

// Platforms without a wired mmap fall back to reading the whole file.

type mapping struct {
	data []byte
}

func open(path string) (*mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &mapping{data: data}, nil
}

func (m *mapping) close() error {
	m.data = nil
	return nil
}
