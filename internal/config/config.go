// Package config loads horcruxd's runtime configuration from environment
// variables, grounded on cmd/api/config/config.go's flat-struct-plus-
// getEnv-helpers pattern. Variable names are namespaced
// HORCRUX_<SECTION>_<KEY> instead of the teacher's unprefixed names.
package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/joho/godotenv"
)

func getHostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

// getBuildVersion extracts version info from Go's embedded build info.
// Returns git short hash + "-dirty" suffix if uncommitted changes, or
// "unknown" if unavailable.
func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if revision == "" {
		return "unknown"
	}
	if len(revision) > 8 {
		revision = revision[:8]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}

// Config is horcruxd's complete runtime configuration.
type Config struct {
	// server.*
	ServerPort            string
	ServerBridgeName      string
	ServerSubnetCIDR      string
	ServerSubnetGateway   string
	ServerUplinkInterface string
	ServerHypervisorKind  string // "qemu", "libvirt", "docker", or "lxc" (§4.E)
	ServerLibvirtSocket   string
	ServerLXCBinary       string

	// database.* (the local persistence store, §4.A)
	DatabasePath string

	// storage.* (default storage-pool provisioning, §3/§4.F)
	StorageDefaultPoolRoot string
	StorageMaxVolumeSize   string

	// auth.* (§4.G)
	AuthJwtSecret         string
	AuthSessionTTL        int // seconds
	AuthArgon2MemoryKB    int
	AuthArgon2Iterations  int
	AuthRateLimitPerMin   int

	// logging.*
	LogLevel          string
	LogMaxSizeBytes   string
	LogMaxFiles       int
	LogRotateInterval string

	// cluster.* (§9 informational membership projection)
	ClusterNodeID       string
	ClusterMembersCSV   string
	ClusterHeartbeatSec int

	// monitoring.* (§4.C rate engine)
	MonitoringSampleIntervalSec int
	OtelEnabled                 bool
	OtelEndpoint                string
	OtelServiceName             string
	OtelServiceInstanceID       string
	OtelInsecure                bool

	// alerts.* (§4.K alert evaluator)
	AlertsEvalIntervalSec int
	AlertsWebhookURL      string

	Version string
	Env     string
}

// Load reads configuration from the environment, loading a .env file first
// if present (fails silently if absent).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:            getEnv("HORCRUX_SERVER_PORT", "8080"),
		ServerBridgeName:      getEnv("HORCRUX_SERVER_BRIDGE_NAME", "hrx-br0"),
		ServerSubnetCIDR:      getEnv("HORCRUX_SERVER_SUBNET_CIDR", "10.200.0.0/16"),
		ServerSubnetGateway:   getEnv("HORCRUX_SERVER_SUBNET_GATEWAY", ""),
		ServerUplinkInterface: getEnv("HORCRUX_SERVER_UPLINK_INTERFACE", ""),
		ServerHypervisorKind:  getEnv("HORCRUX_SERVER_HYPERVISOR_KIND", "qemu"),
		ServerLibvirtSocket:   getEnv("HORCRUX_SERVER_LIBVIRT_SOCKET", ""),
		ServerLXCBinary:       getEnv("HORCRUX_SERVER_LXC_BINARY", ""),

		DatabasePath: getEnv("HORCRUX_DATABASE_PATH", "/var/lib/horcrux/horcrux.db"),

		StorageDefaultPoolRoot: getEnv("HORCRUX_STORAGE_DEFAULT_POOL_ROOT", "/var/lib/horcrux/pools/default"),
		StorageMaxVolumeSize:   getEnv("HORCRUX_STORAGE_MAX_VOLUME_SIZE", "2TB"),

		AuthJwtSecret:        getEnv("HORCRUX_AUTH_JWT_SECRET", ""),
		AuthSessionTTL:       getEnvInt("HORCRUX_AUTH_SESSION_TTL", 3600),
		AuthArgon2MemoryKB:   getEnvInt("HORCRUX_AUTH_ARGON2_MEMORY_KB", 64*1024),
		AuthArgon2Iterations: getEnvInt("HORCRUX_AUTH_ARGON2_ITERATIONS", 3),
		AuthRateLimitPerMin:  getEnvInt("HORCRUX_AUTH_RATE_LIMIT_PER_MIN", 120),

		LogLevel:          getEnv("HORCRUX_LOGGING_LEVEL", "info"),
		LogMaxSizeBytes:   getEnv("HORCRUX_LOGGING_MAX_SIZE", "50MB"),
		LogMaxFiles:       getEnvInt("HORCRUX_LOGGING_MAX_FILES", 5),
		LogRotateInterval: getEnv("HORCRUX_LOGGING_ROTATE_INTERVAL", "24h"),

		ClusterNodeID:       getEnv("HORCRUX_CLUSTER_NODE_ID", getHostname()),
		ClusterMembersCSV:   getEnv("HORCRUX_CLUSTER_MEMBERS", ""),
		ClusterHeartbeatSec: getEnvInt("HORCRUX_CLUSTER_HEARTBEAT_SEC", 10),

		MonitoringSampleIntervalSec: getEnvInt("HORCRUX_MONITORING_SAMPLE_INTERVAL_SEC", 5),
		OtelEnabled:                 getEnvBool("HORCRUX_MONITORING_OTEL_ENABLED", false),
		OtelEndpoint:                getEnv("HORCRUX_MONITORING_OTEL_ENDPOINT", "127.0.0.1:4317"),
		OtelServiceName:             getEnv("HORCRUX_MONITORING_OTEL_SERVICE_NAME", "horcruxd"),
		OtelServiceInstanceID:       getEnv("HORCRUX_MONITORING_OTEL_SERVICE_INSTANCE_ID", getHostname()),
		OtelInsecure:                getEnvBool("HORCRUX_MONITORING_OTEL_INSECURE", true),

		AlertsEvalIntervalSec: getEnvInt("HORCRUX_ALERTS_EVAL_INTERVAL_SEC", 30),
		AlertsWebhookURL:      getEnv("HORCRUX_ALERTS_WEBHOOK_URL", ""),

		Version: getEnv("HORCRUX_VERSION", getBuildVersion()),
		Env:     getEnv("HORCRUX_ENV", "unset"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.AuthSessionTTL <= 0 {
		return fmt.Errorf("HORCRUX_AUTH_SESSION_TTL must be positive, got %v", c.AuthSessionTTL)
	}
	if c.AuthArgon2MemoryKB < 8*1024 {
		return fmt.Errorf("HORCRUX_AUTH_ARGON2_MEMORY_KB must be at least 8192, got %v", c.AuthArgon2MemoryKB)
	}
	if c.AuthArgon2Iterations < 1 {
		return fmt.Errorf("HORCRUX_AUTH_ARGON2_ITERATIONS must be >= 1, got %v", c.AuthArgon2Iterations)
	}
	if c.ClusterHeartbeatSec <= 0 {
		return fmt.Errorf("HORCRUX_CLUSTER_HEARTBEAT_SEC must be positive, got %v", c.ClusterHeartbeatSec)
	}
	if c.MonitoringSampleIntervalSec <= 0 {
		return fmt.Errorf("HORCRUX_MONITORING_SAMPLE_INTERVAL_SEC must be positive, got %v", c.MonitoringSampleIntervalSec)
	}
	if c.AlertsEvalIntervalSec <= 0 {
		return fmt.Errorf("HORCRUX_ALERTS_EVAL_INTERVAL_SEC must be positive, got %v", c.AlertsEvalIntervalSec)
	}
	return nil
}
