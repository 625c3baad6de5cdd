// Package chatbot provides chat pipeline configuration options.
package chatbot

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains chat pipeline configuration.
type Options struct {
	// TopK is the number of chunks retrieved per query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MaxHistoryTurns bounds how many exchanges a session keeps.
	MaxHistoryTurns int `json:"max-history-turns" mapstructure:"max-history-turns"`

	// SessionTTL evicts sessions idle longer than this.
	SessionTTL time.Duration `json:"session-ttl" mapstructure:"session-ttl"`

	// LLMTimeout bounds a single generation call.
	LLMTimeout time.Duration `json:"llm-timeout" mapstructure:"llm-timeout"`

	// SystemPrompt overrides the built-in prompt template. Empty keeps the
	// default. Overrides must carry the {{context}} and {{question}}
	// placeholders.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`

	// Categories overrides the served category set. Empty keeps the
	// default MQA categories.
	Categories []string `json:"categories" mapstructure:"categories"`

	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string `json:"cors-origins" mapstructure:"cors-origins"`
}

// NewOptions creates new Options with defaults matching the deployed
// chatbot: 3 retrieved chunks, 10-turn history, 60s generation deadline.
func NewOptions() *Options {
	return &Options{
		TopK:            3,
		MaxHistoryTurns: 10,
		SessionTTL:      30 * time.Minute,
		LLMTimeout:      60 * time.Second,
	}
}

// AddFlags adds flags for chat options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"chatbot.top-k", o.TopK, "Number of chunks retrieved per query.")
	fs.IntVar(&o.MaxHistoryTurns, options.Join(prefixes...)+"chatbot.max-history-turns", o.MaxHistoryTurns, "Exchanges kept per session.")
	fs.DurationVar(&o.SessionTTL, options.Join(prefixes...)+"chatbot.session-ttl", o.SessionTTL, "Idle session lifetime.")
	fs.DurationVar(&o.LLMTimeout, options.Join(prefixes...)+"chatbot.llm-timeout", o.LLMTimeout, "Timeout for one answer generation.")
	fs.StringVar(&o.SystemPrompt, options.Join(prefixes...)+"chatbot.system-prompt", o.SystemPrompt, "Prompt template override; empty keeps the built-in template.")
	fs.StringSliceVar(&o.Categories, options.Join(prefixes...)+"chatbot.categories", o.Categories, "Categories to serve; empty keeps the default MQA set.")
	fs.StringSliceVar(&o.CORSOrigins, options.Join(prefixes...)+"chatbot.cors-origins", o.CORSOrigins, "Origins allowed to call the API cross-origin.")
}

// Validate validates the chat options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("chatbot.top-k must be positive"))
	}
	if o.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("chatbot.max-history-turns cannot be negative"))
	}
	if o.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("chatbot.session-ttl must be positive"))
	}
	if o.LLMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("chatbot.llm-timeout must be positive"))
	}
	if o.SystemPrompt != "" {
		if !strings.Contains(o.SystemPrompt, "{{context}}") || !strings.Contains(o.SystemPrompt, "{{question}}") {
			errs = append(errs, fmt.Errorf("chatbot.system-prompt must contain the {{context}} and {{question}} placeholders"))
		}
	}
	return errs
}

// Complete completes the chat options.
func (o *Options) Complete() error {
	return nil
}
