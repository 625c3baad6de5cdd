// Package app assembles the command-line entry points for the chatbot
// binaries. An App wires one Cobra root command to an options struct: pflag
// registers the flags, Viper merges a YAML config file and environment
// variables into the struct, and flags given on the command line keep the
// final word. The config file is discovered by application name, and
// environment variables use the upper-cased name as prefix (mqa-chatbot
// reads MQA_CHATBOT_* variables).
//
// Usage:
//
//	app.NewApp(
//	    app.WithName("mqa-chatbot"),
//	    app.WithOptions(opts),
//	    app.WithRunFunc(run),
//	).Run()
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RunFunc is invoked once flags and configuration have been applied.
type RunFunc func() error

// App binds a root command to the options struct it populates. Each App owns
// its own Viper instance, so two Apps in one process never share config
// state.
type App struct {
	name        string
	description string
	options     CliOptions
	runFunc     RunFunc
	viper       *viper.Viper
	cmd         *cobra.Command
}

// Option mutates an App during construction.
type Option func(*App)

// WithName overrides the binary-derived application name. The name selects
// the config file and the environment prefix.
func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions attaches the struct that flags and config are decoded into.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the function Run hands control to.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// NewApp assembles the root command. Call Run on the result.
func NewApp(opts ...Option) *App {
	a := &App{
		name:  filepath.Base(os.Args[0]),
		viper: viper.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	cmd := &cobra.Command{
		Use:          a.name,
		Long:         a.description,
		RunE:         a.execute,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	cmd.PersistentFlags().StringP("config", "c", "",
		"Config file (default: "+a.name+".yaml in ., ./configs, $HOME/."+a.name+" or /etc/"+a.name+")")
	cmd.PersistentFlags().BoolP("help", "h", false, "Show help for "+a.name)
	version.AddFlags(cmd.PersistentFlags())

	if a.options != nil {
		a.options.AddFlags(cmd.Flags())
	}

	a.cmd = cmd
	return a
}

// Run executes the root command and exits the process on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command exposes the underlying cobra command, mainly for tests.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// execute is the root command's RunE. Configuration is applied before the
// options are completed and validated; the run function starts last.
func (a *App) execute(cmd *cobra.Command, _ []string) error {
	version.PrintAndExitIfRequested()

	if err := a.loadConfig(cmd); err != nil {
		return err
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// loadConfig merges the config file, environment variables, and command-line
// flags into the options struct, in ascending precedence.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.viper

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		for _, dir := range a.configSearchPath() {
			v.AddConfigPath(dir)
		}
	}

	switch err := v.ReadInConfig(); err.(type) {
	case nil, viper.ConfigFileNotFoundError:
		// Running without a config file is fine; flags and environment
		// variables still apply. An explicit --config that cannot be read
		// surfaces as a path error instead.
	default:
		return fmt.Errorf("read config file: %w", err)
	}

	a.expandEnvRefs()

	v.SetEnvPrefix(envPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	// Unmarshal below overwrites flag-bound fields, so collect the flags set
	// on the command line and replay them afterwards.
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("decode config into options: %w", err)
	}

	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("replay flag --%s: %w", name, err)
		}
	}

	return nil
}

// configSearchPath lists the directories probed for <name>.yaml when no
// --config flag is given.
func (a *App) configSearchPath() []string {
	return []string{
		".",
		"./configs",
		filepath.Join(os.Getenv("HOME"), "."+a.name),
		"/etc/" + a.name,
	}
}

// envPrefix derives the environment prefix from the application name:
// mqa-ingest reads MQA_INGEST_* variables.
func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// envRefPattern matches ${NAME} and $NAME references in config values.
var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvRefs substitutes environment variable references in every string
// value read from the config file. References to unset variables are kept as
// written.
func (a *App) expandEnvRefs() {
	for _, key := range a.viper.AllKeys() {
		raw, ok := a.viper.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envRefPattern.ReplaceAllStringFunc(raw, func(ref string) string {
			groups := envRefPattern.FindStringSubmatch(ref)
			name := groups[1]
			if name == "" {
				name = groups[2]
			}
			if value := os.Getenv(name); value != "" {
				return value
			}
			return ref
		})
		if expanded != raw {
			a.viper.Set(key, expanded)
		}
	}
}

// GetVersion reports the git version stamped into the binary.
func GetVersion() string {
	return version.Get().GitVersion
}
