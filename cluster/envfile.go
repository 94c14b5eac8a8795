package cluster

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Keys written to the .env cache by discovery
const (
	EnvKeyNodes        = "CLUSTER_NODES"
	EnvKeyLocalIP      = "LOCAL_IP"
	EnvKeyEthInterface = "ETH_IF"
	EnvKeyIBInterface  = "IB_IF"
)

// LoadEnvCache reads the cached cluster configuration. A missing or
// unreadable file is treated as an empty configuration.
func LoadEnvCache(path string) map[string]string {
	env, err := godotenv.Read(path)
	if err != nil {
		slog.Debug("no usable env cache", "path", path, "err", err)
		return map[string]string{}
	}
	return env
}

// SaveEnvCache writes the cluster configuration with a generator
// header, keys sorted, and values quoted only when they contain a
// space or comma. Saving then loading reproduces every value exactly.
func SaveEnvCache(path string, env map[string]string) error {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Auto-generated by run-recipe --discover\n\n")
	for _, k := range keys {
		v := env[k]
		if strings.ContainsAny(v, " ,") {
			fmt.Fprintf(&b, "%s=%q\n", k, v)
		} else {
			fmt.Fprintf(&b, "%s=%s\n", k, v)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to save env cache: %w", err)
	}
	return nil
}
