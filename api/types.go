package api

import "fmt"

// EmbedRequest is the request body for POST /api/embed.
type EmbedRequest struct {
	// Model is the identifier of the model to embed with, either the
	// repository name or the alias it was pulled under.
	Model string `json:"model"`

	// Input is the list of texts to embed. Must not be empty.
	Input []string `json:"input"`
}

// EmbedResponse carries one embedding vector per input text, in input order.
type EmbedResponse struct {
	Model      string      `json:"model"`
	Dimension  int         `json:"dimension"`
	Embeddings [][]float32 `json:"embeddings"`
}

type HealthResponse struct {
	Status       string   `json:"status"`
	LoadedModels []string `json:"loaded_models"`
	Device       string   `json:"device"`
}

// ErrorResponse is the JSON error envelope returned by the server.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is an error with an HTTP status code and message,
// it is parsed on the client-side and not returned from the API
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the embeddy server logs for details"
	}
}
