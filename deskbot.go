package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/deskhelp/deskbot/cmd/deskbot"
	"github.com/deskhelp/deskbot/internal/config"
)

//go:embed etc/deskbot.yaml
var embeddedConfig []byte

func main() {
	// Load .env if present, ignore when missing.
	_ = godotenv.Load()

	var (
		c   *config.Config
		err error
	)
	if path := os.Getenv("DESKBOT_CONFIG"); path != "" {
		c, err = config.LoadFile(path)
	} else {
		c, err = config.LoadFromBytes(embeddedConfig)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cli.SetupRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
