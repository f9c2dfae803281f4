package config

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// NodeConfig is the unified configuration for a radnode process.
type NodeConfig struct {
	Version     int               `yaml:"version,omitempty"`
	Identity    IdentityConfig    `yaml:"identity"`
	Network     NetworkConfig     `yaml:"network"`
	Proxy       ProxyConfig       `yaml:"proxy,omitempty"`
	Storage     StorageConfig     `yaml:"storage"`
	Peers       PeersConfig       `yaml:"peers,omitempty"`
	Replication ReplicationConfig `yaml:"replication,omitempty"`
	Control     ControlConfig     `yaml:"control,omitempty"`
	Telemetry   TelemetryConfig   `yaml:"telemetry,omitempty"`
}

// IdentityConfig points at the keystore backing the node's signer and
// Noise static key (internal/keystore).
type IdentityConfig struct {
	KeyFile string `yaml:"key_file"`
}

// NetworkConfig holds the reactor's listen address.
type NetworkConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// ProxyConfig configures dialing onion destinations via SOCKS5: onion
// addresses pick one of explicit proxy address, global proxy fallback, or
// (in "forward" mode) DNS-style lookup.
type ProxyConfig struct {
	Address string `yaml:"address,omitempty"`
	// Strategy is "proxy" (route through Address) or "forward" (resolve
	// onion addresses as plain DNS names). Missing configuration plus an
	// onion destination is a Configuration error, not a panic.
	Strategy string `yaml:"strategy,omitempty"`
}

// StorageConfig points at the on-disk repository store (internal/gitstore).
type StorageConfig struct {
	Path string `yaml:"path"`
}

// PeersConfig seeds the peer table before the first announce or dial.
type PeersConfig struct {
	// Seeds are "nodeid@host:port" bootstrap entries.
	Seeds []string `yaml:"seeds,omitempty"`
}

// ReplicationConfig holds default announce.ReplicationFactor settings.
// ValidateNodeConfig checks DefaultFactorKind; nothing else reads the
// defaults, and a control-socket announce request without a factor kind
// is rejected rather than filled in from them.
type ReplicationConfig struct {
	DefaultFactorKind string `yaml:"default_factor_kind,omitempty"` // "must_reach" or "range"
	DefaultMin        int    `yaml:"default_min,omitempty"`
	DefaultMax        int    `yaml:"default_max,omitempty"`
	// MaxFetchesPerSecond caps how often the worker pool starts a new
	// fetch or serve task. Zero (the default) leaves it unthrottled.
	MaxFetchesPerSecond float64 `yaml:"max_fetches_per_second,omitempty"`
}

// ControlConfig configures the local control socket (internal/daemon).
type ControlConfig struct {
	SocketPath string `yaml:"socket_path,omitempty"`
	CookiePath string `yaml:"cookie_path,omitempty"`
}

// TelemetryConfig holds observability settings.
// All features are disabled by default (opt-in).
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Audit   AuditConfig   `yaml:"audit,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // default: "127.0.0.1:9091"
}

// AuditConfig controls structured audit logging.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}
