package safetensors

import (
	"errors"
	"strings"
)

// IsEmbeddingWeight reports whether a tensor name looks like the token
// embedding matrix. Three naming families are recognized:
//
//	BERT style:  bert.embeddings.word_embeddings.weight
//	LLaMA style: model.embed_tokens.weight
//	GPT style:   transformer.wte.weight
//
// Models with nonstandard tensor names are not supported.
func IsEmbeddingWeight(name string) bool {
	if strings.Contains(name, "embeddings") && strings.Contains(name, "word_embeddings") && strings.HasSuffix(name, "weight") {
		return true
	}
	return strings.HasSuffix(name, "embed_tokens.weight") || strings.HasSuffix(name, "wte.weight")
}

// LocateEmbeddings returns the first name in names that matches the token
// embedding heuristic.
func LocateEmbeddings(names []string) (string, error) {
	for _, name := range names {
		if IsEmbeddingWeight(name) {
			return name, nil
		}
	}
	return "", errors.New("could not find embedding weight tensor")
}
