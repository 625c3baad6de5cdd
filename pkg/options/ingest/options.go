// Package ingest provides document ingestion configuration options.
package ingest

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains ingestion configuration.
type Options struct {
	// DataDir is the root of the per-category document directories.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// ChunkSize is the chunk length in runes.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the rune overlap between adjacent chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// Concurrency bounds parallel embedding calls.
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`

	// Categories restricts ingestion to the listed categories. Empty means
	// every known category.
	Categories []string `json:"categories" mapstructure:"categories"`

	// Watch keeps the process alive, rebuilding a category whenever its
	// data directory changes.
	Watch bool `json:"watch" mapstructure:"watch"`

	// Debounce is how long a category's changes are coalesced before its
	// rebuild starts.
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

// NewOptions creates new Options with the deployed ingestion defaults.
func NewOptions() *Options {
	return &Options{
		DataDir:      "data",
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Concurrency:  4,
		Debounce:     2 * time.Second,
	}
}

// AddFlags adds flags for ingestion options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DataDir, options.Join(prefixes...)+"ingest.data-dir", o.DataDir, "Root of the per-category document directories.")
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"ingest.chunk-size", o.ChunkSize, "Chunk length in runes.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"ingest.chunk-overlap", o.ChunkOverlap, "Rune overlap between adjacent chunks.")
	fs.IntVar(&o.Concurrency, options.Join(prefixes...)+"ingest.concurrency", o.Concurrency, "Parallel embedding calls.")
	fs.StringSliceVar(&o.Categories, options.Join(prefixes...)+"ingest.categories", o.Categories, "Categories to ingest; empty means all.")
	fs.BoolVar(&o.Watch, options.Join(prefixes...)+"ingest.watch", o.Watch, "Watch the data directory and rebuild on change.")
	fs.DurationVar(&o.Debounce, options.Join(prefixes...)+"ingest.debounce", o.Debounce, "Quiet period before a changed category is rebuilt.")
}

// Validate validates the ingestion options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.DataDir == "" {
		errs = append(errs, fmt.Errorf("ingest.data-dir is required"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("ingest.concurrency must be positive"))
	}
	if o.Watch && o.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("ingest.debounce must be positive in watch mode"))
	}
	return errs
}

// Complete completes the ingestion options.
func (o *Options) Complete() error {
	return nil
}
