// Package store provides vector store configuration options.
package store

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/options"
)

// Supported vector store backends.
const (
	BackendSQLite = "sqlite"
	BackendMilvus = "milvus"
)

var _ options.IOptions = (*Options)(nil)

// Options selects and configures the vector store backend.
type Options struct {
	// Backend is the vector store implementation: sqlite or milvus.
	Backend string `json:"backend" mapstructure:"backend"`

	// Dir is the root directory of the per-category sqlite stores.
	Dir string `json:"dir" mapstructure:"dir"`
}

// NewOptions creates new Options with the embedded sqlite backend.
func NewOptions() *Options {
	return &Options{
		Backend: BackendSQLite,
		Dir:     "vector_stores",
	}
}

// AddFlags adds flags for store options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"store.backend", o.Backend, "Vector store backend (sqlite or milvus).")
	fs.StringVar(&o.Dir, options.Join(prefixes...)+"store.dir", o.Dir, "Root directory of the per-category sqlite stores.")
}

// Validate validates the store options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendSQLite:
		if o.Dir == "" {
			errs = append(errs, fmt.Errorf("store.dir is required for the sqlite backend"))
		}
	case BackendMilvus:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q (expected %s or %s)", o.Backend, BackendSQLite, BackendMilvus))
	}
	return errs
}

// Complete completes the store options.
func (o *Options) Complete() error {
	if o.Backend == "" {
		o.Backend = BackendSQLite
	}
	return nil
}
