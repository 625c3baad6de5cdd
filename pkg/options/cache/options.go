// Package cache provides query cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/options"
	redisopts "github.com/ray729alp/mqa-chatbot/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the Redis-backed answer cache.
type Options struct {
	// Enabled turns the cache on. Off by default.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is how long a cached answer stays valid.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces the cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis is the connection configuration.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions creates cache options with the cache disabled.
func NewOptions() *Options {
	return &Options{
		Enabled:   false,
		TTL:       time.Hour,
		KeyPrefix: "mqa:chat:",
		Redis:     redisopts.NewOptions(),
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, prefix+"cache.enabled", o.Enabled, "Enable the Redis answer cache.")
	fs.DurationVar(&o.TTL, prefix+"cache.ttl", o.TTL, "Cached answer TTL.")
	fs.StringVar(&o.KeyPrefix, prefix+"cache.key-prefix", o.KeyPrefix, "Cache key prefix.")

	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	// Nested under cache so the flag names mirror the config file layout.
	o.Redis.AddFlags(fs, append(prefixes, "cache")...)
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Enabled {
		if o.TTL <= 0 {
			errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %v", o.TTL))
		}
		if o.Redis == nil {
			errs = append(errs, fmt.Errorf("cache.enabled requires a redis configuration"))
		} else if err := o.Redis.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Complete fills in derived defaults.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = "mqa:chat:"
	}
	return o.Redis.Complete()
}
