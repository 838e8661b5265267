package core

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the server.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname" validate:"required"`
	// Port on which the server will listen.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
	// Maximum number of concurrent connections the server will allow. 0 is unbounded.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0"`
	// Deadline applied to each packet read. 0 waits forever.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	// Largest packet (excluding its length prefix) a client may declare.
	MaxPacketLength int `mapstructure:"max_packet_length" validate:"gt=0"`

	Status struct {
		// Max players advertised in the server list.
		MaxPlayers int `mapstructure:"max_players" validate:"gte=0"`
		// Message of the day shown under the server name in the server list.
		MOTD string `mapstructure:"motd"`
		// Version label shown when the client's protocol doesn't match.
		VersionName string `mapstructure:"version_name"`
	} `mapstructure:"status"`

	Login struct {
		MaxNameLength int `mapstructure:"max_name_length" validate:"gt=0"`
		// Regular expression every player name must match.
		NamePattern string `mapstructure:"name_pattern" validate:"required"`
		// What happens when a name that's already online logs in again: evict or reject.
		DuplicatePolicy string `mapstructure:"duplicate_policy" validate:"oneof=evict reject"`
		// Pause between the handshake and processing of the login start packet.
		LoginDelay time.Duration `mapstructure:"login_delay" validate:"gte=0"`
		// Pause between login success and the start of the play session.
		SessionDelay time.Duration `mapstructure:"session_delay" validate:"gte=0"`
		// Minimum time between login attempts from one IP address. 0 disables throttling.
		Throttle time.Duration `mapstructure:"throttle" validate:"gte=0"`
		// How long to wait for an evicted session to shut down.
		EvictionTimeout time.Duration `mapstructure:"eviction_timeout" validate:"gt=0"`
	} `mapstructure:"login"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	} `mapstructure:"logging"`

	Metrics struct {
		// Serve Prometheus metrics over HTTP.
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port" validate:"gte=0,lte=65535"`
	} `mapstructure:"metrics"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Dump every packet to the log at debug level.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "LODESTONE"

var defaults = map[string]interface{}{
	"hostname":                         "0.0.0.0",
	"port":                             25565,
	"max_connections":                  0,
	"read_timeout":                     "0s",
	"max_packet_length":                2097151,
	"status.max_players":               20,
	"status.motd":                      "A Lodestone Server",
	"status.version_name":              "Lodestone",
	"login.max_name_length":            16,
	"login.name_pattern":               "^[a-zA-Z0-9_]+$",
	"login.duplicate_policy":           "evict",
	"login.login_delay":                "220ms",
	"login.session_delay":              "450ms",
	"login.eviction_timeout":           "5s",
	"login.throttle":                   "0s",
	"logging.log_file_path":            "",
	"logging.log_level":                "info",
	"metrics.enabled":                  false,
	"metrics.port":                     9225,
	"debugging.enabled":                false,
	"debugging.pprof_port":             6060,
	"debugging.packet_logging_enabled": false,
}

// LoadConfig reads config.yaml from configPath, if there is one, on top of the
// defaults. Any key can be overridden with an environment variable; for example
// login.duplicate_policy can be set with LODESTONE_LOGIN_DUPLICATE_POLICY.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()
	// This allows us to set nested yaml config options through environment
	// variables. For example, status.motd can be set using: <envVarPrefix>_STATUS_MOTD
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	return unmarshal(v)
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	config, err := unmarshal(newViper())
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return config
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the config values against their constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddress returns the host:port the server binds to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// MetricsAddress returns the host:port the metrics endpoint binds to.
func (c *Config) MetricsAddress() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Metrics.Port))
}
