package embedder

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/cedrugs/embeddy/safetensors"
)

// simple wordpiece vocabulary with no sequence markers: "a b c" encodes
// to [0 1 2] verbatim
const testTokenizer = `{
	"model": {
		"type": "WordPiece",
		"unk_token": "[UNK]",
		"vocab": {"a": 0, "b": 1, "c": 2, "d": 3, "z": 9, "[UNK]": 4}
	}
}`

func f32Bytes(vs ...float32) []byte {
	bts := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(bts[i*4:], math.Float32bits(v))
	}
	return bts
}

// writeModel lays out a loadable model directory with a 4x2 embedding
// matrix: row i is the vector for token id i.
func writeModel(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(testTokenizer), 0o644); err != nil {
		t.Fatal(err)
	}

	err := safetensors.SaveFile(filepath.Join(dir, "model.safetensors"), []safetensors.NamedTensor{
		{
			Name:  "bert.embeddings.word_embeddings.weight",
			DType: "F32",
			Shape: []uint64{4, 2},
			Data: f32Bytes(
				1, 0,
				0, 1,
				2, 2,
				1, 1,
			),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	return dir
}

func TestEmbedMeanPools(t *testing.T) {
	e, err := New(writeModel(t, `{"hidden_size": 2}`))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if e.Dimension() != 2 {
		t.Errorf("dimension = %d, want 2", e.Dimension())
	}
	if e.ModelType() != "bert" {
		t.Errorf("model type = %q, want bert", e.ModelType())
	}

	// tokens [0 1 2]: mean of (1,0), (0,1), (2,2) is (1,1)
	vectors, err := e.Embed([]string{"a b c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	if !slices.Equal(vectors[0], []float32{1, 1}) {
		t.Errorf("vector = %v, want [1 1]", vectors[0])
	}
}

func TestEmbedPreservesOrder(t *testing.T) {
	e, err := New(writeModel(t, `{"hidden_size": 2}`))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	vectors, err := e.Embed([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if !slices.Equal(vectors[0], []float32{1, 0}) {
		t.Errorf("vectors[0] = %v, want [1 0]", vectors[0])
	}
	if !slices.Equal(vectors[1], []float32{0, 1}) {
		t.Errorf("vectors[1] = %v, want [0 1]", vectors[1])
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e, err := New(writeModel(t, `{"hidden_size": 2}`))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	_, err = e.Embed(nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestEmbedNoTokens(t *testing.T) {
	e, err := New(writeModel(t, `{"hidden_size": 2}`))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Embed([]string{"   "}); err == nil {
		t.Fatal("expected error for text that produces no tokens")
	}
}

func TestEmbedTokenOutOfRange(t *testing.T) {
	e, err := New(writeModel(t, `{"hidden_size": 2}`))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	// "z" has token id 9 but the matrix has only 4 rows
	if _, err := e.Embed([]string{"z"}); err == nil {
		t.Fatal("expected error for token id beyond the embedding matrix")
	}
}

func TestNewDimensionMismatch(t *testing.T) {
	if _, err := New(writeModel(t, `{"hidden_size": 3}`)); err == nil {
		t.Fatal("expected error when config dimension disagrees with the weights")
	}
}

func TestNewNoDimension(t *testing.T) {
	if _, err := New(writeModel(t, `{"model_type": "bert"}`)); err == nil {
		t.Fatal("expected error when config carries no dimension field")
	}
}

func TestNewMissingWeights(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"hidden_size": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatal("expected error for missing weight file")
	}
}

func TestEmbeddingDimPrecedence(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		config string
		want   int
	}{
		{`{"hidden_size": 384}`, 384},
		{`{"n_embd": 768}`, 768},
		{`{"dim": 512}`, 512},
		{`{"hidden_size": 384, "n_embd": 768, "dim": 512}`, 384},
		{`{"n_embd": 768, "dim": 512}`, 768},
	}

	for _, tt := range cases {
		p := filepath.Join(dir, "config.json")
		if err := os.WriteFile(p, []byte(tt.config), 0o644); err != nil {
			t.Fatal(err)
		}

		config, err := loadModelConfig(p)
		if err != nil {
			t.Fatal(err)
		}

		got, err := config.embeddingDim()
		if err != nil {
			t.Fatalf("%s: %v", tt.config, err)
		}
		if got != tt.want {
			t.Errorf("%s: dim = %d, want %d", tt.config, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(`{"hidden_size": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := loadModelConfig(p)
	if err != nil {
		t.Fatal(err)
	}

	if got := config.modelType(); got != "bert" {
		t.Errorf("model type = %q, want bert", got)
	}
	if got := config.hiddenLayers(); got != 12 {
		t.Errorf("layers = %d, want 12", got)
	}
	if got := config.attentionHeads(); got != 12 {
		t.Errorf("heads = %d, want 12", got)
	}
}
