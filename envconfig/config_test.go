package envconfig

import (
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Setenv("EMBEDDY_HOST", "")
	t.Setenv("EMBEDDY_DEBUG", "")
	Debug = false
	LoadConfig()
	if Host != "127.0.0.1:8080" {
		t.Errorf("Host = %q, want default", Host)
	}
	if Debug {
		t.Error("Debug should default to false")
	}

	t.Setenv("EMBEDDY_HOST", "0.0.0.0:11434")
	t.Setenv("EMBEDDY_DEBUG", "1")
	LoadConfig()
	if Host != "0.0.0.0:11434" {
		t.Errorf("Host = %q, want 0.0.0.0:11434", Host)
	}
	if !Debug {
		t.Error("Debug should be enabled")
	}
}

func TestConfigHostWithoutPort(t *testing.T) {
	t.Setenv("EMBEDDY_HOST", "0.0.0.0")
	LoadConfig()
	if Host != "0.0.0.0:8080" {
		t.Errorf("Host = %q, want 0.0.0.0:8080", Host)
	}
}

func TestConfigInvalidHostIgnored(t *testing.T) {
	t.Setenv("EMBEDDY_HOST", "not a host")
	LoadConfig()
	if Host != "127.0.0.1:8080" {
		t.Errorf("Host = %q, want default", Host)
	}
}

func TestConfigOrigins(t *testing.T) {
	t.Setenv("EMBEDDY_ORIGINS", "http://a.example,http://b.example")
	LoadConfig()
	if len(AllowOrigins) != 2 || AllowOrigins[0] != "http://a.example" {
		t.Errorf("AllowOrigins = %v", AllowOrigins)
	}
}

func TestDataDirPaths(t *testing.T) {
	t.Setenv("EMBEDDY_DATA_DIR", "/tmp/embeddy-test")
	LoadConfig()
	if got := ModelsDir(); got != filepath.Join("/tmp/embeddy-test", "models") {
		t.Errorf("ModelsDir() = %q", got)
	}
	if got := RegistryPath(); got != filepath.Join("/tmp/embeddy-test", "models.json") {
		t.Errorf("RegistryPath() = %q", got)
	}
}
