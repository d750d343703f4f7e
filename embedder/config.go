package embedder

import (
	"encoding/json"
	"fmt"
	"os"
)

// modelConfig is the subset of config.json the embedder consults. It is
// decoded once at load time; embedding dimension is the only field that
// may fail the load, everything else is informational metadata.
type modelConfig struct {
	ModelType string `json:"model_type"`

	// embedding dimension, in precedence order
	HiddenSize *int `json:"hidden_size"`
	NEmbd      *int `json:"n_embd"`
	Dim        *int `json:"dim"`

	NumHiddenLayers   *int `json:"num_hidden_layers"`
	NLayer            *int `json:"n_layer"`
	NumAttentionHeads *int `json:"num_attention_heads"`
	NHead             *int `json:"n_head"`
}

func loadModelConfig(path string) (*modelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config modelConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

func (c *modelConfig) modelType() string {
	if c.ModelType == "" {
		return "bert"
	}
	return c.ModelType
}

func (c *modelConfig) embeddingDim() (int, error) {
	for _, v := range []*int{c.HiddenSize, c.NEmbd, c.Dim} {
		if v != nil {
			return *v, nil
		}
	}
	return 0, fmt.Errorf("could not determine embedding dimension")
}

func firstOr(fallback int, vs ...*int) int {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return fallback
}

func (c *modelConfig) hiddenLayers() int {
	return firstOr(12, c.NumHiddenLayers, c.NLayer)
}

func (c *modelConfig) attentionHeads() int {
	return firstOr(12, c.NumAttentionHeads, c.NHead)
}
