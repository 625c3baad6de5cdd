// Package http configures the prediction server's listener.
package http

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains HTTP server configuration.
type Options struct {
	// Addr is the listen address as host:port.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadTimeout bounds reading a request, header included.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout bounds writing a response. Answer generation waits on the
	// model backend, so the default is generous.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// IdleTimeout bounds how long a keep-alive connection may sit idle.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Addr:         ":5000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// AddFlags adds flags for HTTP options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.StringVar(&o.Addr, prefix+"http.addr", o.Addr, "Listen address as host:port.")
	fs.DurationVar(&o.ReadTimeout, prefix+"http.read-timeout", o.ReadTimeout, "Bound on reading a request.")
	fs.DurationVar(&o.WriteTimeout, prefix+"http.write-timeout", o.WriteTimeout, "Bound on writing a response, including answer generation.")
	fs.DurationVar(&o.IdleTimeout, prefix+"http.idle-timeout", o.IdleTimeout, "Bound on idle keep-alive connections.")
}

// Validate validates the HTTP options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr is required"))
	}
	if o.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.read-timeout must be positive"))
	}
	if o.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.write-timeout must be positive"))
	}
	return errs
}
