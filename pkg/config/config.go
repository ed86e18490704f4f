// Package config loads pcsd settings from defaults, an optional YAML file,
// the sysconfig environment file and PCSD_* environment variables, in
// increasing order of precedence. Command line flags bound to the same viper
// instance override all of them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile is read when no --config flag is given; it may be absent
	DefaultConfigFile = "/etc/pcsd/pcsd.yaml"
	// DefaultEnvFile is the sysconfig file loaded into the environment
	DefaultEnvFile = "/etc/sysconfig/pcsd"
	// EnvPrefix prefixes every environment variable pcsd reads
	EnvPrefix = "PCSD"
)

// Config is the complete pcsd configuration
type Config struct {
	NodeName      string `mapstructure:"node_name"`
	Bind          string `mapstructure:"bind"`
	Port          int    `mapstructure:"port"`
	DataDir       string `mapstructure:"data_dir"`
	TokensFile    string `mapstructure:"tokens_file"`
	ClustersFile  string `mapstructure:"clusters_file"`
	PeersDB       string `mapstructure:"peers_db"`
	CertDir       string `mapstructure:"cert_dir"`
	SessionSecret string `mapstructure:"session_secret"`

	RPC       RPCConfig       `mapstructure:"rpc"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
}

// RPCConfig configures outbound node calls
type RPCConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// AggregateConfig configures status fan-out
type AggregateConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Slack       time.Duration `mapstructure:"slack"`
}

// ToolsConfig locates the external cluster tools
type ToolsConfig struct {
	PCS       string        `mapstructure:"pcs"`
	CrmMon    string        `mapstructure:"crm_mon"`
	Cibadmin  string        `mapstructure:"cibadmin"`
	Cmapctl   string        `mapstructure:"cmapctl"`
	Systemctl string        `mapstructure:"systemctl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig selects the password backend
type AuthConfig struct {
	Backend string `mapstructure:"backend"`
	// LoginRate is the sustained password attempts per second allowed per
	// client; 0 disables throttling
	LoginRate  float64 `mapstructure:"login_rate"`
	LoginBurst int     `mapstructure:"login_burst"`
}

// CORSConfig lists browser origins allowed to call the API
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("node_name", "")
	v.SetDefault("bind", "")
	v.SetDefault("port", 2224)
	v.SetDefault("data_dir", "/var/lib/pcsd")
	v.SetDefault("tokens_file", "")
	v.SetDefault("clusters_file", "")
	v.SetDefault("peers_db", "")
	v.SetDefault("cert_dir", "")
	v.SetDefault("session_secret", "")

	v.SetDefault("rpc.timeout", 5*time.Second)
	v.SetDefault("rpc.max_body_bytes", int64(10<<20))
	v.SetDefault("aggregate.concurrency", 16)
	v.SetDefault("aggregate.slack", time.Second)

	v.SetDefault("tools.pcs", "/usr/sbin/pcs")
	v.SetDefault("tools.crm_mon", "/usr/sbin/crm_mon")
	v.SetDefault("tools.cibadmin", "/usr/sbin/cibadmin")
	v.SetDefault("tools.cmapctl", "/usr/sbin/corosync-cmapctl")
	v.SetDefault("tools.systemctl", "/usr/bin/systemctl")
	v.SetDefault("tools.timeout", 30*time.Second)

	v.SetDefault("auth.backend", "store")
	v.SetDefault("auth.login_rate", 1.0)
	v.SetDefault("auth.login_burst", 5)
	v.SetDefault("cors.origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load builds the configuration. An empty configFile means
// DefaultConfigFile, which is skipped when missing; an explicit configFile
// must exist. A missing envFile is ignored.
func Load(v *viper.Viper, configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	required := configFile != ""
	if !required {
		configFile = DefaultConfigFile
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve fills derived values
func (c *Config) resolve() error {
	if c.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to determine node name: %w", err)
		}
		c.NodeName = host
	}
	if c.TokensFile == "" {
		c.TokensFile = filepath.Join(c.DataDir, "pcs_users.conf")
	}
	if c.ClustersFile == "" {
		c.ClustersFile = filepath.Join(c.DataDir, "clusters.conf")
	}
	if c.PeersDB == "" {
		c.PeersDB = filepath.Join(c.DataDir, "peers.db")
	}
	if c.CertDir == "" {
		c.CertDir = c.DataDir
	}
	return nil
}

// Validate rejects settings pcsd cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.RPC.Timeout <= 0 {
		errs = append(errs, errors.New("rpc.timeout must be positive"))
	}
	if c.RPC.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("rpc.max_body_bytes must be positive"))
	}
	if c.Aggregate.Concurrency <= 0 {
		errs = append(errs, errors.New("aggregate.concurrency must be positive"))
	}
	if c.Aggregate.Slack < 0 {
		errs = append(errs, errors.New("aggregate.slack must not be negative"))
	}
	if c.Tools.Timeout <= 0 {
		errs = append(errs, errors.New("tools.timeout must be positive"))
	}
	if c.Auth.LoginRate < 0 {
		errs = append(errs, errors.New("auth.login_rate must not be negative"))
	}
	switch c.Auth.Backend {
	case "store", "pam":
	default:
		errs = append(errs, fmt.Errorf("unknown auth.backend %q", c.Auth.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ListenAddr returns the address the HTTPS server binds to
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}
