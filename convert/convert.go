// Package convert transforms legacy pickle-based pytorch checkpoints into
// the memory-mappable safetensors container consumed by the tensor store.
package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cedrugs/embeddy/safetensors"
)

const (
	// SafetensorsName is the canonical weight file inside a model directory.
	SafetensorsName = "model.safetensors"
	// TorchName is the legacy weight file accepted as conversion input.
	TorchName = "pytorch_model.bin"
)

// stubbed in tests, which cannot craft real pickle checkpoints
var loadTorch = parseTorch

// ToSafetensors ensures the model directory holds a canonical weight file.
// If model.safetensors already exists this is a no-op. If only the legacy
// pytorch checkpoint exists, all of its tensors are read into memory,
// written out as safetensors, and the legacy file is removed. The write is
// atomic-or-absent: a failed conversion leaves no canonical file behind.
// If neither file exists this is also a no-op; the caller fails at load.
func ToSafetensors(dir string) error {
	canonical := filepath.Join(dir, SafetensorsName)
	if safetensors.Exists(canonical) {
		return nil
	}

	legacy := filepath.Join(dir, TorchName)
	if !safetensors.Exists(legacy) {
		return nil
	}

	slog.Info("converting legacy checkpoint", "path", legacy)

	tensors, err := loadTorch(legacy)
	if err != nil {
		return fmt.Errorf("failed to read legacy checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "model-*.safetensors.partial")
	if err != nil {
		return err
	}

	if err := safetensors.Save(tmp, tensors); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write safetensors: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), canonical); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	slog.Info("converted to safetensors", "path", canonical, "tensors", len(tensors))

	// the canonical file is authoritative now; failing to reclaim the
	// legacy file's space is not fatal
	if err := os.Remove(legacy); err != nil {
		slog.Warn("could not remove legacy checkpoint", "path", legacy, "error", err)
	}

	return nil
}
