package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type cli struct {
	cfg        Config
	outputJSON bool
}

func (c *cli) setupConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return nil
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:               "flowgraph",
		Short:             "Graph workflow engine",
		SilenceUsage:      true,
		PersistentPreRunE: c.setupConfig,
	}
	addConfigFlags(root.PersistentFlags())
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "print results as JSON")

	root.AddCommand(
		c.serveCmd(),
		c.defineCmd(),
		c.runCmd(),
		c.resumeCmd(),
		c.signalCmd(),
		c.statusCmd(),
		versionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// parseInput decodes the --input flag. An empty flag means no input.
func parseInput(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("--input must be a JSON object: %w", err)
	}
	return input, nil
}
