package jingle

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	Trickle         bool          `mapstructure:"trickle"`
	TrickleInterval time.Duration `mapstructure:"trickle_interval"`
	ReadinessPoll   time.Duration `mapstructure:"readiness_poll"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	ICEServers      []ICEServer   `mapstructure:"ice_servers"`
	BridgeJID       string        `mapstructure:"bridge_jid"`
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout:  10 * time.Second,
		Trickle:         true,
		TrickleInterval: 10 * time.Millisecond,
		ReadinessPoll:   250 * time.Millisecond,
		SettleDelay:     2500 * time.Millisecond,
	}
}

// SetDefaults registers the DefaultConfig values on v.
func SetDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("request_timeout", def.RequestTimeout.String())
	v.SetDefault("trickle", def.Trickle)
	v.SetDefault("trickle_interval", def.TrickleInterval.String())
	v.SetDefault("readiness_poll", def.ReadinessPoll.String())
	v.SetDefault("settle_delay", def.SettleDelay.String())
	v.SetDefault("bridge_jid", "")
}

// NewViper returns a viper instance with defaults, an optional config file and
// JINGLE_ prefixed environment variables. path may be empty.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("JINGLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		logrus.WithField("path", path).Info("loaded config")
	}
	return v, nil
}

func LoadConfig(path string) (Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
