package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-fleet-auth"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FLEET_CLIENT_BASE_URL
const EnvPrefix = "FLEET"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Client  auth.ClientConfig `mapstructure:"client"`
	Server  Server            `mapstructure:"server"`
	Storage Storage           `mapstructure:"storage"`
}

type Server struct {
	Addr       string        `mapstructure:"addr"`
	FormKey    string        `mapstructure:"form_key"`
	FormMaxAge time.Duration `mapstructure:"form_max_age"`
}

type Storage struct {
	StateDSN   string `mapstructure:"state_dsn"`
	CookieFile string `mapstructure:"cookie_file"`
}

// GetClient returns the session client options
func (c Config) GetClient() auth.Config {
	return c.Client
}

// Load reads configuration from defaults, an optional config file and
// environment variables, in increasing precedence. An empty path looks
// for fleet.yaml in the working directory and ~/.fleet.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("fleet")
		v.AddConfigPath(".")
		v.AddConfigPath(DataDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DataDir is where the CLI keeps cookies and state by default
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".fleet"
	}
	return filepath.Join(home, ".fleet")
}

func setDefaults(v *viper.Viper) {
	def := auth.DefaultConfig()

	v.SetDefault("client.base_url", def.BaseURL)
	v.SetDefault("client.csrf_path", def.CSRFPath)
	v.SetDefault("client.login_path", def.LoginPath)
	v.SetDefault("client.logout_path", def.LogoutPath)
	v.SetDefault("client.user_path", def.UserPath)
	v.SetDefault("client.csrf_cookie_name", def.CSRFCookieName)
	v.SetDefault("client.csrf_header_name", def.CSRFHeaderName)
	v.SetDefault("client.request_timeout", def.RequestTimeout.String())
	v.SetDefault("client.state_key", def.StateKey)
	v.SetDefault("client.allowed_groups", def.AllowedGroups)
	v.SetDefault("client.public_paths", def.PublicPaths)
	v.SetDefault("client.home_route", def.HomeRoute)
	v.SetDefault("client.login_route", def.LoginRoute)
	v.SetDefault("client.phone_region", def.PhoneRegion)

	v.SetDefault("server.addr", "127.0.0.1:8572")
	v.SetDefault("server.form_max_age", (12 * time.Hour).String())

	v.SetDefault("storage.state_dsn", "file:"+filepath.Join(DataDir(), "state.db"))
	v.SetDefault("storage.cookie_file", filepath.Join(DataDir(), "cookies"))
}
