package main

import (
	"fmt"
	"os"

	"github.com/tillberg/autorestart"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/cli"
)

func main() {
	if os.Getenv("CAREAI_AUTORESTART") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "careai:", err)
		os.Exit(1)
	}
}
