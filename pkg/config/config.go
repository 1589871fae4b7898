// Package config resolves client settings from flags, HELPDESK_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/helpdesk/pkg/eventbus"
	"github.com/go-go-golems/helpdesk/pkg/logging"
)

const EnvPrefix = "HELPDESK"

type Settings struct {
	APIURL        string `mapstructure:"api-url" yaml:"api-url"`
	WSURL         string `mapstructure:"ws-url" yaml:"ws-url"`
	Profile       string `mapstructure:"profile" yaml:"profile"`
	CredentialsDB string `mapstructure:"credentials-db" yaml:"credentials-db"`

	TypingExpiry     time.Duration `mapstructure:"typing-expiry" yaml:"typing-expiry"`
	TypingIdle       time.Duration `mapstructure:"typing-idle" yaml:"typing-idle"`
	BannerTTL        time.Duration `mapstructure:"banner-ttl" yaml:"banner-ttl"`
	ReconnectInitial time.Duration `mapstructure:"reconnect-initial" yaml:"reconnect-initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect-max" yaml:"reconnect-max"`
	PingInterval     time.Duration `mapstructure:"ping-interval" yaml:"ping-interval"`

	Bus eventbus.Settings `mapstructure:",squash" yaml:",inline"`
	Log logging.Settings  `mapstructure:",squash" yaml:",inline"`
}

func DefaultCredentialsDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "helpdesk", "credentials.db")
}

// AddFlags registers every setting as a persistent flag.
func AddFlags(fs *pflag.FlagSet) {
	bus := eventbus.DefaultSettings()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("api-url", "http://localhost:8000", "Base URL of the helpdesk REST API")
	fs.String("ws-url", "", "Realtime websocket URL (derived from api-url when empty)")
	fs.String("profile", "default", "Credential profile name")
	fs.String("credentials-db", DefaultCredentialsDB(), "SQLite file holding stored credentials")
	fs.Duration("typing-expiry", 3*time.Second, "Drop a remote typing indicator after this much silence")
	fs.Duration("typing-idle", 3*time.Second, "Send stop_typing after this much local inactivity")
	fs.Duration("banner-ttl", 3*time.Second, "How long success and error banners stay visible")
	fs.Duration("reconnect-initial", 500*time.Millisecond, "First reconnect delay")
	fs.Duration("reconnect-max", 30*time.Second, "Maximum reconnect delay")
	fs.Duration("ping-interval", 25*time.Second, "Websocket keepalive interval (negative disables)")
	fs.Bool("redis-enabled", false, "Fan realtime events through Redis Streams")
	fs.String("redis-addr", bus.RedisAddr, "Redis address host:port")
	fs.String("redis-group", bus.RedisGroup, "Redis consumer group prefix (one group per process)")
	fs.String("redis-consumer", "", "Redis consumer name (random when empty)")
	fs.Bool("redis-observe", false, "Follow events another process publishes to Redis instead of opening a socket")
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", "auto", "Log format (auto, console, json)")
	fs.String("log-file", "", "Write logs to this file instead of stderr")
}

// Load binds fs into a fresh viper instance and decodes the result.
func Load(fs *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Settings{}, errors.Wrap(err, "bind flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, errors.Wrapf(err, "read config %s", path)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "helpdesk"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Settings{}, errors.Wrap(err, "read config")
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decode config")
	}
	return s.Normalize()
}

// Normalize trims URLs and derives the websocket URL from the API URL.
func (s Settings) Normalize() (Settings, error) {
	s.APIURL = strings.TrimRight(strings.TrimSpace(s.APIURL), "/")
	if s.APIURL == "" {
		return s, errors.New("api-url is required")
	}
	if s.WSURL == "" {
		ws, err := DeriveWSURL(s.APIURL)
		if err != nil {
			return s, err
		}
		s.WSURL = ws
	}
	if s.Profile == "" {
		s.Profile = "default"
	}
	return s, nil
}

// DeriveWSURL maps http(s)://host/path to ws(s)://host/ws.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse api-url %q", apiURL)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("api-url %q: unsupported scheme %q", apiURL, u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
