package main

import (
	"fmt"
	"os"

	"github.com/MishthiJain8/joinright/internal/cli"
	"github.com/MishthiJain8/joinright/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return cli.NewRootCmd(&cli.Dependencies{Config: cfg}).Execute()
}
