// Package options defines the shared options contract used by every
// configurable component, plus small helpers for flag naming.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by per-component option structs so they can be
// composed into a service-level configuration.
type IOptions interface {
	// Validate checks the options and reports every problem found.
	// Implementations may also normalize values while validating.
	Validate() []error

	// AddFlags registers the component's flags on the given flagset,
	// optionally under a prefix.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join builds a flag-name prefix from the given parts separated by ".".
// A non-empty result carries a trailing "." so callers can write
// Join(prefixes...)+"milvus.address" and get "store.milvus.address".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}
