package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReviewConfig is the hard-review rule set applied at the end of every
// adjudication attempt. Operations tune these without a restart.
type ReviewConfig struct {
	// HighCostThreshold routes a claim to manual review once its total
	// paid amount crosses this value. Zero disables the rule.
	HighCostThreshold int64 `mapstructure:"highCostThreshold"`

	// ReviewOnMissingAuth escalates claims that contain a line denied for
	// a missing authorization instead of only denying the line.
	ReviewOnMissingAuth bool `mapstructure:"reviewOnMissingAuth"`
}

type ReviewConfigHolder struct {
	current atomic.Value // holds ReviewConfig
}

// NewReviewConfigHolder reads review.yml and keeps watching it, swapping the
// rule set atomically on every valid change. When no file is present the
// env-loaded values on cfg become the defaults.
func NewReviewConfigHolder(cfg Config) (*ReviewConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("review")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/claims-askes/config") // Volume-mounted config
	v.AddConfigPath("/etc/claims-askes")            // System config
	v.AddConfigPath(".")                            // Current directory (dev mode)

	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use the env-loaded values
		v.SetDefault("review.highCostThreshold", cfg.HighCostThreshold)
		v.SetDefault("review.reviewOnMissingAuth", cfg.ReviewOnMissingAuth)
	}

	var rules ReviewConfig
	if err := v.UnmarshalKey("review", &rules); err != nil {
		return nil, err
	}
	if err := validateReviewConfig(rules); err != nil {
		return nil, err
	}

	holder := &ReviewConfigHolder{}
	holder.current.Store(rules)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReviewConfig
		if err := v.UnmarshalKey("review", &updated); err != nil {
			log.Printf("[review-config] reload failed: %v", err)
			return
		}
		if err := validateReviewConfig(updated); err != nil {
			log.Printf("[review-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[review-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// StaticReviewConfigHolder pins the holder to rules; no file, no watcher.
func StaticReviewConfigHolder(rules ReviewConfig) *ReviewConfigHolder {
	holder := &ReviewConfigHolder{}
	holder.current.Store(rules)
	return holder
}

func (h *ReviewConfigHolder) Get() ReviewConfig {
	return h.current.Load().(ReviewConfig)
}

func validateReviewConfig(rules ReviewConfig) error {
	if rules.HighCostThreshold < 0 {
		return errors.New("review.highCostThreshold cannot be negative")
	}
	return nil
}
