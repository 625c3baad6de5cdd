// Package chatbot provides the MQA chatbot service application.
package chatbot

import (
	"fmt"

	"github.com/ray729alp/mqa-chatbot/pkg/app"
)

const (
	// Name is the service name used in the banner and initial log fields.
	Name = "mqa-chatbot"

	appDescription = `MQA Chatbot Service

Retrieval-augmented question answering over the Malaysian Qualifications
Agency document corpus.

This server provides:
  - POST /predict     category-scoped question answering
  - GET  /healthz     liveness and per-category availability
  - GET  /categories  category metadata for client pickers
  - GET  /metrics     chat counters in Prometheus text format`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run assembles the chatbot server from the options and runs it until a
// termination signal arrives.
func Run(opts *Options) error {
	printBanner(opts)

	srv, err := NewServer(opts)
	if err != nil {
		return err
	}
	return srv.Run()
}

func printBanner(opts *Options) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Store: %s\n", opts.Store.Backend)
	fmt.Printf("  Embedding: %s (%s)\n", opts.Embedding.Provider, opts.Embedding.Model)
	fmt.Printf("  Chat: %s (%s)\n", opts.Chat.Provider, opts.Chat.Model)
}
