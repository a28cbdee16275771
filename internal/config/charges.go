package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChargesConfig holds the tunables of charge finalization and selection writes.
type ChargesConfig struct {
	Lock       LockTiming     `mapstructure:"lock"`
	Selections SelectionRules `mapstructure:"selections"`
}

type LockTiming struct {
	// TTL bounds how long a distributed lock survives a crashed holder.
	TTL time.Duration `mapstructure:"ttl"`
	// Wait is how long a writer queues for the event lock before giving up.
	Wait time.Duration `mapstructure:"wait"`
}

type SelectionRules struct {
	EnforceCutoff bool `mapstructure:"enforceCutoff"`
}

func DefaultChargesConfig() ChargesConfig {
	return ChargesConfig{
		Lock: LockTiming{
			TTL:  30 * time.Second,
			Wait: 5 * time.Second,
		},
		Selections: SelectionRules{
			EnforceCutoff: true,
		},
	}
}

type ChargesConfigHolder struct {
	current atomic.Value // holds ChargesConfig
}

// NewStaticChargesConfigHolder returns a holder that never reloads.
func NewStaticChargesConfigHolder(cfg ChargesConfig) *ChargesConfigHolder {
	holder := &ChargesConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewChargesConfigHolder() (*ChargesConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("charges")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/dongi")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DONGI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultChargesConfig()
	v.SetDefault("charges.lock.ttl", defaults.Lock.TTL)
	v.SetDefault("charges.lock.wait", defaults.Lock.Wait)
	v.SetDefault("charges.selections.enforceCutoff", defaults.Selections.EnforceCutoff)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg ChargesConfig
	if err := v.UnmarshalKey("charges", &cfg); err != nil {
		return nil, err
	}
	if err := validateChargesConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticChargesConfigHolder(cfg)

	if fileFound && getenvBool("CHARGES_CONFIG_WATCH", true) {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated ChargesConfig
			if err := v.UnmarshalKey("charges", &updated); err != nil {
				log.Printf("[charges-config] reload failed: %v", err)
				return
			}
			if err := validateChargesConfig(updated); err != nil {
				log.Printf("[charges-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[charges-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *ChargesConfigHolder) Get() ChargesConfig {
	if h == nil {
		return DefaultChargesConfig()
	}
	return h.current.Load().(ChargesConfig)
}

func validateChargesConfig(cfg ChargesConfig) error {
	if cfg.Lock.TTL <= 0 {
		return errors.New("charges.lock.ttl must be positive")
	}
	if cfg.Lock.Wait < 0 {
		return errors.New("charges.lock.wait cannot be negative")
	}
	if cfg.Lock.Wait > cfg.Lock.TTL {
		return errors.New("charges.lock.wait cannot exceed charges.lock.ttl")
	}
	return nil
}
