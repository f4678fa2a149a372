// Package cli holds the deskbot command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskhelp/deskbot/internal/config"
	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/server"
	"github.com/deskhelp/deskbot/internal/svc"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// SetupRootCmd builds the command tree around an already loaded config.
func SetupRootCmd(c *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "deskbot",
		Short:        "Service desk WhatsApp bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(c)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(c)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	return root
}

func runServe(c *config.Config) error {
	if c.Server.Quiet {
		logging.Disable()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	svcCtx, err := svc.NewServiceContext(c, Version)
	if err != nil {
		return err
	}
	defer svcCtx.Close()

	if err := svcCtx.Start(); err != nil {
		return err
	}
	return server.Run(ctx, svcCtx)
}
