// Package milvusopts configures the Milvus client behind the milvus vector
// store backend.
package milvusopts

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Milvus client configuration. It is only consulted when
// the store backend is milvus.
type Options struct {
	// Address is the Milvus endpoint as host:port.
	Address string `json:"address" mapstructure:"address"`

	// Database is the database holding the category collections.
	Database string `json:"database" mapstructure:"database"`

	// Username and Password authenticate the connection. Password falls
	// back to MILVUS_PASSWORD when unset.
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`

	// Timeout bounds connection setup and collection operations.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:  "localhost:19530",
		Database: "default",
		Timeout:  30 * time.Second,
	}
}

// AddFlags adds flags for Milvus options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.StringVar(&o.Address, prefix+"milvus.address", o.Address, "Milvus endpoint as host:port.")
	fs.StringVar(&o.Database, prefix+"milvus.database", o.Database, "Database holding the category collections.")
	fs.StringVar(&o.Username, prefix+"milvus.username", o.Username, "Username for Milvus authentication.")
	fs.StringVar(&o.Password, prefix+"milvus.password", o.Password, "Password for Milvus authentication.")
	fs.DurationVar(&o.Timeout, prefix+"milvus.timeout", o.Timeout, "Bound on connection setup and collection operations.")
}

// Validate validates the Milvus options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus.address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus.timeout must be positive"))
	}
	return errs
}

// Complete fills in the password from the environment when unset.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("MILVUS_PASSWORD")
	}
	return nil
}
