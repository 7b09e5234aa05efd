package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type EnvVarName string // should be caps with underscore

const (
	stateDir        EnvVarName = "HBD_STATE_DIR"
	inventoryPath   EnvVarName = "HBD_INVENTORY_PATH"
	catalogPath     EnvVarName = "HBD_CATALOG_PATH"
	identityFile    EnvVarName = "HBD_IDENTITY_FILE"
	remoteUser      EnvVarName = "HBD_REMOTE_USER"
	defaultTimeout  EnvVarName = "HBD_TIMEOUT_SECONDS"
	defaultRetries  EnvVarName = "HBD_MAX_RETRIES"
	defaultDelay    EnvVarName = "HBD_RETRY_DELAY_SECONDS"
	defaultWorkers  EnvVarName = "HBD_MAX_WORKERS"
	sentryURL       EnvVarName = "HBD_SENTRY_URL"
	releasePort     EnvVarName = "HBD_RELEASE_HTTP_PORT"
	routerProbePort EnvVarName = "HBD_ROUTER_PROBE_PORT"
)

type ConstantsConfig struct{}

func NewConstants() *ConstantsConfig {
	return &ConstantsConfig{}
}

// GetStateDir is where the agent state file and task daemon files live.
func (c ConstantsConfig) GetStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return getEnvOrDefault(stateDir, filepath.Join(home, ".hbd"))
}

func (c ConstantsConfig) GetInventoryPath() string {
	return getEnvOrDefault(inventoryPath, filepath.Join(c.GetStateDir(), "servers.json"))
}

func (c ConstantsConfig) GetCatalogPath() string {
	return getEnvOrDefault(catalogPath, filepath.Join(c.GetStateDir(), "operations.json"))
}

func (c ConstantsConfig) GetIdentityFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return getEnvOrDefault(identityFile, filepath.Join(home, ".ssh", "id_ed25519"))
}

func (c ConstantsConfig) GetRemoteUser() string {
	return getEnvOrDefault(remoteUser, "hb")
}

func (c ConstantsConfig) GetDefaultTimeout() time.Duration {
	return getEnvSecondsOrDefault(defaultTimeout, 300*time.Second)
}

func (c ConstantsConfig) GetDefaultMaxRetries() int {
	return getEnvIntOrDefault(defaultRetries, 3)
}

func (c ConstantsConfig) GetDefaultRetryDelay() time.Duration {
	return getEnvSecondsOrDefault(defaultDelay, 5*time.Second)
}

func (c ConstantsConfig) GetDefaultMaxWorkers() int {
	return getEnvIntOrDefault(defaultWorkers, 5)
}

func (c ConstantsConfig) GetSentryURL() string {
	return getEnvOrDefault(sentryURL, "")
}

// GetReleaseHTTPPort is the port build hosts serve release artifacts on.
func (c ConstantsConfig) GetReleaseHTTPPort() int {
	return getEnvIntOrDefault(releasePort, 8000)
}

// GetRouterProbePort is the port probed to decide a router came up.
func (c ConstantsConfig) GetRouterProbePort() int {
	return getEnvIntOrDefault(routerProbePort, 80)
}

func getEnvOrDefault(envVarName EnvVarName, defaultVal string) string {
	val := os.Getenv(string(envVarName))
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvIntOrDefault(envVarName EnvVarName, defaultVal int) int {
	val := os.Getenv(string(envVarName))
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvSecondsOrDefault(envVarName EnvVarName, defaultVal time.Duration) time.Duration {
	val := os.Getenv(string(envVarName))
	if val == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

var GlobalConfig = NewConstants()
