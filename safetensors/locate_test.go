package safetensors

import "testing"

func TestIsEmbeddingWeight(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"bert.embeddings.word_embeddings.weight", true},
		{"embeddings.word_embeddings.weight", true},
		{"model.embed_tokens.weight", true},
		{"transformer.wte.weight", true},
		{"embeddings.position_embeddings.weight", false},
		{"bert.embeddings.word_embeddings.bias", false},
		{"model.layers.0.self_attn.q_proj.weight", false},
		{"lm_head.weight", false},
	}

	for _, tt := range cases {
		if got := IsEmbeddingWeight(tt.name); got != tt.want {
			t.Errorf("IsEmbeddingWeight(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLocateEmbeddings(t *testing.T) {
	got, err := LocateEmbeddings([]string{
		"bert.embeddings.position_embeddings.weight",
		"bert.embeddings.word_embeddings.weight",
		"bert.encoder.layer.0.attention.self.query.weight",
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := "bert.embeddings.word_embeddings.weight"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLocateEmbeddingsFirstMatchWins(t *testing.T) {
	got, err := LocateEmbeddings([]string{
		"bert.embeddings.word_embeddings.weight",
		"other.wte.weight",
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := "bert.embeddings.word_embeddings.weight"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLocateEmbeddingsNotFound(t *testing.T) {
	_, err := LocateEmbeddings([]string{
		"model.layers.0.mlp.up_proj.weight",
		"lm_head.weight",
	})
	if err == nil {
		t.Fatal("expected error when no tensor matches")
	}
}
