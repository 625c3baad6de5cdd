// Package main is the entry point for the MQA chatbot ingestion tool.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/ray729alp/mqa-chatbot/internal/ingest"
)

func main() {
	ingest.NewApp().Run()
}
