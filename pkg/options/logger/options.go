// Package logopts configures the kart-io logger for both binaries.
package logopts

import (
	"github.com/kart-io/logger"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"
)

// Options wraps option.LogOption so the logger can be composed alongside the
// other service options and bound to CLI flags.
type Options struct {
	*option.LogOption
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		LogOption: option.DefaultLogOption(),
	}
}

// AddFlags adds flags for logger options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Engine, "log.engine", o.Engine, "Logging engine, zap or slog.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level to emit (DEBUG|INFO|WARN|ERROR|FATAL).")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log format, json or console.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Where log output goes.")
	fs.BoolVar(&o.Development, "log.development", o.Development, "Enable development mode.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Do not record the calling site.")
	fs.BoolVar(&o.DisableStacktrace, "log.disable-stacktrace", o.DisableStacktrace, "Do not capture stacktraces.")

	o.addOTLPFlags(fs)
	o.addRotationFlags(fs)
}

// The sub-option structs may arrive nil from the library defaults, so they
// are ensured before their fields are bound.
func (o *Options) addOTLPFlags(fs *pflag.FlagSet) {
	if o.OTLP == nil {
		o.OTLP = &option.OTLPOption{}
	}
	fs.StringVar(&o.OTLPEndpoint, "log.otlp-endpoint", o.OTLPEndpoint, "OTLP endpoint to ship logs to.")
	fs.StringVar(&o.OTLP.Protocol, "log.otlp.protocol", "grpc", "OTLP protocol, grpc or http.")
}

func (o *Options) addRotationFlags(fs *pflag.FlagSet) {
	if o.Rotation == nil {
		o.Rotation = &option.RotationOption{}
	}
	fs.IntVar(&o.Rotation.MaxSize, "log.rotation.max-size", 100, "Size in MB of a log file before it rotates.")
	fs.IntVar(&o.Rotation.MaxAge, "log.rotation.max-age", 15, "Days to retain rotated log files.")
	fs.IntVar(&o.Rotation.MaxBackups, "log.rotation.max-backups", 30, "Rotated log files to retain.")
	fs.BoolVar(&o.Rotation.Compress, "log.rotation.compress", true, "Gzip rotated log files.")
}

// Validate validates the logger options.
func (o *Options) Validate() error {
	return o.LogOption.Validate()
}

// Init builds a logger from the options and installs it as the global logger.
func (o *Options) Init() error {
	log, err := logger.New(o.LogOption)
	if err != nil {
		return err
	}
	logger.SetGlobal(log)
	return nil
}
