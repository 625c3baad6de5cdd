// Package redis provides the Redis connection options shared by the answer
// and embedding caches.
package redis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/options"
)

// redactedPassword replaces the real password wherever options are printed.
const redactedPassword = "[REDACTED]"

// Options defines configuration options for Redis.
type Options struct {
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	Password     string        `json:"-" mapstructure:"password"`
	Database     int           `json:"database" mapstructure:"database"`
	MaxRetries   int           `json:"max-retries" mapstructure:"max-retries"`
	PoolSize     int           `json:"pool-size" mapstructure:"pool-size"`
	MinIdleConns int           `json:"min-idle-conns" mapstructure:"min-idle-conns"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	PoolTimeout  time.Duration `json:"pool-timeout" mapstructure:"pool-timeout"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Host:         "127.0.0.1",
		Port:         6379,
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns the host:port the client dials.
func (o *Options) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// MarshalJSON implements json.Marshaler with the password redacted, so the
// options can be dumped in logs and debug output.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	out := struct {
		plain
		Password string `json:"password"`
	}{plain: plain(*o)}
	if o.Password != "" {
		out.Password = redactedPassword
	}
	return json.Marshal(out)
}

// String renders the connection target with the password redacted.
func (o *Options) String() string {
	password := ""
	if o.Password != "" {
		password = redactedPassword
	}
	return fmt.Sprintf("Redis{addr=%s, password=%s, database=%d}", o.Addr(), password, o.Database)
}

// Validate checks the connection options.
func (o *Options) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("redis.port must be in (0, 65535], got %d", o.Port)
	}
	if o.PoolSize <= 0 {
		return fmt.Errorf("redis.pool-size must be positive")
	}
	return nil
}

// Complete fills in the password from the environment when unset. A password
// given on the command line is accepted with a warning; flags leak into
// process listings.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("REDIS_PASSWORD")
	} else if os.Getenv("REDIS_PASSWORD") == "" {
		fmt.Fprintln(os.Stderr, "WARNING: pass the Redis password via REDIS_PASSWORD instead of flags")
	}
	return nil
}

// AddFlags adds flags for Redis options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.StringVar(&o.Host, prefix+"redis.host", o.Host, "Redis server host.")
	fs.IntVar(&o.Port, prefix+"redis.port", o.Port, "Redis server port.")
	fs.StringVar(&o.Password, prefix+"redis.password", o.Password, "Redis password; prefer the REDIS_PASSWORD environment variable.")
	fs.IntVar(&o.Database, prefix+"redis.database", o.Database, "Redis logical database.")
	fs.IntVar(&o.MaxRetries, prefix+"redis.max-retries", o.MaxRetries, "Retries per command before giving up.")
	fs.IntVar(&o.PoolSize, prefix+"redis.pool-size", o.PoolSize, "Connection pool size.")
	fs.IntVar(&o.MinIdleConns, prefix+"redis.min-idle-conns", o.MinIdleConns, "Idle connections kept open.")
	fs.DurationVar(&o.DialTimeout, prefix+"redis.dial-timeout", o.DialTimeout, "Timeout for establishing a connection.")
	fs.DurationVar(&o.ReadTimeout, prefix+"redis.read-timeout", o.ReadTimeout, "Per-command read timeout.")
	fs.DurationVar(&o.WriteTimeout, prefix+"redis.write-timeout", o.WriteTimeout, "Per-command write timeout.")
	fs.DurationVar(&o.PoolTimeout, prefix+"redis.pool-timeout", o.PoolTimeout, "Wait for a pool connection before failing.")
}
