// Package main is the entry point for the MQA chatbot service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot"
)

func main() {
	chatbot.NewApp().Run()
}
