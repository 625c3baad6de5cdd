package app

import "github.com/spf13/pflag"

// CliOptions is implemented by the option structs the applications are
// configured with. App registers the flags, then completes and validates the
// options before handing control to the run function.
type CliOptions interface {
	// AddFlags registers the options' flags on the flagset.
	AddFlags(fs *pflag.FlagSet)

	// Validate checks the options after flags and config are applied.
	Validate() error

	// Complete fills in derived defaults.
	Complete() error
}
