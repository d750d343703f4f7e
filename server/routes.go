package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cedrugs/embeddy/api"
	"github.com/cedrugs/embeddy/embedder"
	"github.com/cedrugs/embeddy/envconfig"
	"github.com/cedrugs/embeddy/registry"
)

// Device is informational: embedding-table lookup always runs on the CPU.
const Device = "cpu"

type Server struct {
	cache *EmbedderCache
}

// NewServer wires a server against the on-disk registry at registryPath.
func NewServer(registryPath string) *Server {
	return &Server{
		cache: NewEmbedderCache(func(name string) (*embedder.Embedder, error) {
			reg, err := registry.Load(registryPath)
			if err != nil {
				return nil, err
			}

			m, err := reg.Get(name)
			if err != nil {
				return nil, err
			}

			return embedder.New(m.Path)
		}),
	}
}

func (s *Server) GenerateRoutes() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowOrigins = []string{"http://localhost", "http://127.0.0.1"}
	config.AllowOrigins = append(config.AllowOrigins, envconfig.AllowOrigins...)

	r := gin.Default()
	r.Use(cors.New(config))

	r.GET("/api/health", s.HealthHandler)
	r.POST("/api/embed", s.EmbedHandler)

	return r
}

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:       "ok",
		LoadedModels: s.cache.Loaded(),
		Device:       Device,
	})
}

func (s *Server) EmbedHandler(c *gin.Context) {
	var req api.EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	if len(req.Input) == 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "input cannot be empty"})
		return
	}

	e, err := s.cache.Get(req.Model)
	if err != nil {
		c.JSON(errorStatus(err), api.ErrorResponse{Error: err.Error()})
		return
	}

	embeddings, err := e.Embed(req.Input)
	if err != nil {
		slog.Error("embedding failed", "model", req.Model, "error", err)
		c.JSON(errorStatus(err), api.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.EmbedResponse{
		Model:      req.Model,
		Dimension:  e.Dimension(),
		Embeddings: embeddings,
	})
}

// errorStatus maps the error taxonomy onto HTTP statuses: unknown model is
// the client's mistake, empty input likewise; everything else is ours.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedder.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs the HTTP API on ln until the listener closes.
func Serve(ln net.Listener) error {
	if !envconfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := NewServer(envconfig.RegistryPath())

	slog.Info("listening", "addr", ln.Addr(), "device", Device)

	srv := &http.Server{Handler: s.GenerateRoutes()}
	return srv.Serve(ln)
}
