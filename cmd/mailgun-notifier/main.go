package main

import (
	"os"

	"github.com/telekom/mailgun-notifier/pkg/cmd"
)

func main() {
	root := cmd.NewRootCommand(cmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
