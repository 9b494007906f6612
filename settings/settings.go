// Package settings loads server configuration from an optional YAML file and
// PARTYROOM_* environment variables.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wricardo/mcp-training/partyroom/lobby"
)

const (
	// EnvPrefix prefixes every environment override, e.g. PARTYROOM_LOBBY_MAX_PLAYERS.
	EnvPrefix = "PARTYROOM"
	// FileName is looked up in the working directory when no path is given.
	FileName = "partyroom"
)

// Config is the full server configuration.
type Config struct {
	Lobby  Lobby  `mapstructure:"lobby"`
	Server Server `mapstructure:"server"`
	Game   Game   `mapstructure:"game"`
}

// Lobby holds room rules.
type Lobby struct {
	MinPlayers    int `mapstructure:"min_players"`
	MaxPlayers    int `mapstructure:"max_players"`
	MaxNameLength int `mapstructure:"max_name_length"`
	CodeLength    int `mapstructure:"code_length"`
}

// Server holds HTTP server timeouts and the websocket origin allow-list.
type Server struct {
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Game holds the sample race settings.
type Game struct {
	DefaultTrack string        `mapstructure:"default_track"`
	TowDelay     time.Duration `mapstructure:"tow_delay"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lobby.min_players", lobby.DefaultMinPlayers)
	v.SetDefault("lobby.max_players", lobby.DefaultMaxPlayers)
	v.SetDefault("lobby.max_name_length", lobby.DefaultMaxNameLength)
	v.SetDefault("lobby.code_length", lobby.DefaultCodeLength)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("game.default_track", "")
	v.SetDefault("game.tow_delay", 5*time.Second)
}

// Load reads configuration. An explicit path must exist; with an empty path
// partyroom.yaml in the working directory is used when present.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges that lobby options would reject later.
func (c Config) Validate() error {
	if c.Lobby.MinPlayers < 1 {
		return fmt.Errorf("lobby.min_players must be at least 1, got %d", c.Lobby.MinPlayers)
	}
	if c.Lobby.MaxPlayers < c.Lobby.MinPlayers {
		return fmt.Errorf("lobby.max_players (%d) must not be below lobby.min_players (%d)",
			c.Lobby.MaxPlayers, c.Lobby.MinPlayers)
	}
	if c.Lobby.MaxNameLength < 1 {
		return fmt.Errorf("lobby.max_name_length must be positive, got %d", c.Lobby.MaxNameLength)
	}
	if c.Lobby.CodeLength < 4 {
		return fmt.Errorf("lobby.code_length must be at least 4, got %d", c.Lobby.CodeLength)
	}
	if c.Game.TowDelay < 0 {
		return fmt.Errorf("game.tow_delay must not be negative, got %s", c.Game.TowDelay)
	}
	return nil
}

// LobbyOptions returns lobby options carrying the configured room rules.
func (c Config) LobbyOptions() lobby.Options {
	return lobby.Options{
		MinPlayers:    c.Lobby.MinPlayers,
		MaxPlayers:    c.Lobby.MaxPlayers,
		MaxNameLength: c.Lobby.MaxNameLength,
		CodeLength:    c.Lobby.CodeLength,
	}
}
