package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cedrugs/embeddy/convert"
	"github.com/cedrugs/embeddy/format"
)

// hubBase is overridden in tests to point at a local server.
var hubBase = "https://huggingface.co"

// Pull downloads a model from the hub into modelsDir, converts a legacy
// checkpoint if that is all the repository offers, and registers the model.
func (r *Registry) Pull(ctx context.Context, modelsDir, repo, alias string) (Model, error) {
	dir := filepath.Join(modelsDir, strings.ReplaceAll(repo, "/", "--"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Model{}, err
	}

	slog.Info("pulling model", "repo", repo, "path", dir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return downloadFile(gctx, repo, "config.json", dir) })
	g.Go(func() error { return downloadFile(gctx, repo, "tokenizer.json", dir) })
	g.Go(func() error {
		// canonical weights preferred, legacy checkpoint accepted
		if err := downloadFile(gctx, repo, convert.SafetensorsName, dir); err == nil {
			return nil
		}
		return downloadFile(gctx, repo, convert.TorchName, dir)
	})
	if err := g.Wait(); err != nil {
		return Model{}, fmt.Errorf("download failed: %w", err)
	}

	if err := convert.ToSafetensors(dir); err != nil {
		return Model{}, err
	}

	m := Model{
		Name:         repo,
		Repo:         repo,
		Alias:        alias,
		Path:         dir,
		DownloadedAt: time.Now().UTC().Format(time.RFC3339),
	}

	r.Add(m)
	if err := r.Save(); err != nil {
		return Model{}, err
	}

	slog.Info("model registered", "name", m.Name, "alias", m.Alias)
	return m, nil
}

func downloadFile(ctx context.Context, repo, name, dir string) error {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", hubBase, repo, name)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", url, response.Status)
	}

	tmp, err := os.CreateTemp(dir, name+".partial")
	if err != nil {
		return err
	}

	n, err := io.Copy(tmp, response.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	slog.Info("downloaded", "file", name, "size", format.HumanBytes(n))
	return nil
}
