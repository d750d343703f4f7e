package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
)

var (
	// Set via EMBEDDY_HOST in the environment
	Host string
	// Set via EMBEDDY_DATA_DIR in the environment
	DataDir string
	// Set via EMBEDDY_ORIGINS in the environment
	AllowOrigins []string
	// Set via EMBEDDY_DEBUG in the environment
	Debug bool
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"EMBEDDY_HOST":     {"EMBEDDY_HOST", Host, "The host:port to bind to (default \"127.0.0.1:8080\")"},
		"EMBEDDY_DATA_DIR": {"EMBEDDY_DATA_DIR", DataDir, "The path to the data directory (default is \"~/.embeddy\")"},
		"EMBEDDY_ORIGINS":  {"EMBEDDY_ORIGINS", AllowOrigins, "A comma separated list of allowed origins"},
		"EMBEDDY_DEBUG":    {"EMBEDDY_DEBUG", Debug, "Show additional debug information (e.g. EMBEDDY_DEBUG=1)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// ModelsDir is where pulled model directories live.
func ModelsDir() string {
	return filepath.Join(DataDir, "models")
}

// RegistryPath is the flat identifier -> record table consulted on load.
func RegistryPath() string {
	return filepath.Join(DataDir, "models.json")
}

func LoadConfig() {
	Host = "127.0.0.1:8080"
	if host := clean("EMBEDDY_HOST"); host != "" {
		if _, _, err := net.SplitHostPort(host); err == nil {
			Host = host
		} else if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
			Host = net.JoinHostPort(ip.String(), "8080")
		} else {
			slog.Warn("invalid setting, ignoring", "EMBEDDY_HOST", host)
		}
	}

	if dir := clean("EMBEDDY_DATA_DIR"); dir != "" {
		DataDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		DataDir = filepath.Join(home, ".embeddy")
	}

	if origins := clean("EMBEDDY_ORIGINS"); origins != "" {
		AllowOrigins = strings.Split(origins, ",")
	}

	if debug := clean("EMBEDDY_DEBUG"); debug != "" {
		Debug = true
	}
}

func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}
