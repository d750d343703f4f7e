// Package embedder turns text into fixed-size vectors by looking rows up
// in a model's token embedding matrix and mean-pooling them. No forward
// pass runs; the output is the raw embedding table contribution only.
package embedder

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cedrugs/embeddy/convert"
	"github.com/cedrugs/embeddy/safetensors"
	"github.com/cedrugs/embeddy/tokenizer"
)

// ErrInvalidInput marks client mistakes such as an empty text list.
var ErrInvalidInput = errors.New("invalid input")

type Embedder struct {
	modelType string
	dim       int
	layers    int
	heads     int

	// weights owns the mapping for the lifetime of the Embedder; every
	// vector handed out is a decoded copy
	weights    *safetensors.File
	embeddings string // resolved embedding tensor name
	vocabRows  int

	tok *tokenizer.Tokenizer
}

// New loads an embedder from a model directory holding config.json, a
// tokenizer.json artifact and one weight file. A legacy pytorch checkpoint
// is converted to safetensors on first load.
func New(dir string) (*Embedder, error) {
	slog.Info("loading model", "path", dir)

	if err := convert.ToSafetensors(dir); err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	config, err := loadModelConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	dim, err := config.embeddingDim()
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	weights, err := safetensors.Open(filepath.Join(dir, convert.SafetensorsName))
	if err != nil {
		return nil, fmt.Errorf("failed to load model weights: %w", err)
	}

	name, err := safetensors.LocateEmbeddings(weights.Tensors())
	if err != nil {
		weights.Close()
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	info, _ := weights.Info(name)
	if len(info.Shape) != 2 || int(info.Shape[1]) != dim {
		weights.Close()
		return nil, fmt.Errorf("failed to load model: embedding tensor %q has shape %v, want (_, %d)", name, info.Shape, dim)
	}

	tok, err := tokenizer.Load(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		weights.Close()
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	e := &Embedder{
		modelType:  config.modelType(),
		dim:        dim,
		layers:     config.hiddenLayers(),
		heads:      config.attentionHeads(),
		weights:    weights,
		embeddings: name,
		vocabRows:  int(info.Shape[0]),
		tok:        tok,
	}

	slog.Info("model loaded",
		"type", e.modelType,
		"dimension", e.dim,
		"vocabulary", e.vocabRows,
		"tensor", name,
		"tokenizer", tok.Type().String())

	return e, nil
}

// Embed returns one mean-pooled vector per input text, in input order.
func (e *Embedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input texts", ErrInvalidInput)
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		ids, err := e.tok.Encode(text, true)
		if err != nil {
			return nil, fmt.Errorf("tokenization failed: %w", err)
		}
		if len(ids) == 0 {
			// mean pooling over zero rows is undefined; refuse rather
			// than divide by zero
			return nil, fmt.Errorf("text produced no tokens")
		}

		pooled := make([]float32, e.dim)
		for _, id := range ids {
			if id < 0 || int(id) >= e.vocabRows {
				return nil, fmt.Errorf("token id %d out of range for vocabulary of %d", id, e.vocabRows)
			}

			row, err := e.weights.Float32Row(e.embeddings, int(id))
			if err != nil {
				return nil, fmt.Errorf("failed to read embedding row: %w", err)
			}
			for i, v := range row {
				pooled[i] += v
			}
		}

		n := float32(len(ids))
		for i := range pooled {
			pooled[i] /= n
		}

		vectors = append(vectors, pooled)
	}

	return vectors, nil
}

// Dimension returns the length of every vector Embed produces.
func (e *Embedder) Dimension() int {
	return e.dim
}

// ModelType reports the architecture label from config.json, metadata only.
func (e *Embedder) ModelType() string {
	return e.modelType
}

// Close unmaps the model weights.
func (e *Embedder) Close() error {
	return e.weights.Close()
}
