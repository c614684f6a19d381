package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/definitions"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/scheduler"
	"github.com/rendis/flowgraph/pkg/mcp"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio and resume due timers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// stdout carries the MCP transport.
			a, err := openApp(ctx, c.cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if dir := c.cfg.DefinitionsDir; dir != "" {
				n, err := a.publishDir(ctx, dir)
				if err != nil {
					return err
				}
				a.logger.Info("definitions published", "dir", dir, "count", n)
			}

			sched, err := scheduler.NewScheduler(a.manager, scheduler.Options{
				Spec:     fmt.Sprintf("@every %s", c.cfg.SchedulerInterval),
				PoolSize: c.cfg.PoolSize,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			srv := mcp.NewFlowgraphServer(mcp.ServerDeps{
				Engine:      a.manager,
				Definitions: a.defs,
				Instances:   a.store,
				Events:      a.store,
				Validator:   a.validator,
				Types:       a.catalog,
				Logger:      a.logger,
			})
			notifier := mcp.NewNotifier(srv.MCPServer(), srv.Sessions(), a.logger)
			stopWatch, err := notifier.Watch(ctx, a.hub)
			if err != nil {
				return err
			}
			defer stopWatch()

			a.logger.Info("flowgraph serving on stdio", "db", c.cfg.DBPath)
			return srv.Serve(ctx)
		},
	}
}

func (c *cli) defineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "define <file|dir>...",
		Short: "Validate and publish workflow definitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, c.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if info.IsDir() {
					n, err := a.publishDir(ctx, path)
					if err != nil {
						return err
					}
					success(cmd.OutOrStdout(), "published %d definitions from %s", n, path)
					continue
				}
				def, err := definitions.LoadFile(path)
				if err != nil {
					return err
				}
				if err := definitions.Publish(ctx, a.defs, a.validator, def); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "published %s", def.ID)
			}
			return nil
		},
	}
}

func (c *cli) runCmd() *cobra.Command {
	var (
		input string
		file  string
	)
	cmd := &cobra.Command{
		Use:   "run [definition-id]",
		Short: "Start a workflow instance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseInput(input)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, c.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			var id string
			switch {
			case file != "":
				def, err := definitions.LoadFile(file)
				if err != nil {
					return err
				}
				if err := definitions.Publish(ctx, a.defs, a.validator, def); err != nil {
					return err
				}
				id = def.ID
			case len(args) == 1:
				id = args[0]
			default:
				return fmt.Errorf("a definition id or --file is required")
			}

			res, err := a.manager.StartWorkflowByID(ctx, id, in)
			return c.report(cmd, res, err)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "start input as a JSON object")
	cmd.Flags().StringVarP(&file, "file", "f", "", "publish and run a definition file")
	return cmd
}

func (c *cli) resumeCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "resume <instance-id> <activity-id>",
		Short: "Resume a suspended instance at a blocking activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseInput(input)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, c.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.manager.ResumeWorkflow(ctx, args[0], args[1], in)
			return c.report(cmd, res, err)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "resume input as a JSON object")
	return cmd
}

func (c *cli) signalCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "signal <key>",
		Short: "Resume every instance waiting on a signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseInput(input)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, c.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.manager.TriggerSignal(ctx, args[0], in)
			if c.outputJSON {
				if jerr := printJSON(cmd.OutOrStdout(), results); jerr != nil {
					return jerr
				}
				return err
			}
			if len(results) == 0 && err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no instance waits on %q\n", args[0])
			}
			for _, res := range results {
				printResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "signal input as a JSON object")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <instance-id>",
		Short: "Show a persisted instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, c.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			inst, err := a.manager.GetInstance(ctx, args[0])
			if err != nil {
				return err
			}
			if c.outputJSON {
				return printJSON(cmd.OutOrStdout(), inst)
			}
			printInstance(cmd.OutOrStdout(), inst)
			return nil
		},
	}
}

// report prints a manager result. A faulted run still has a result to show
// and exits non-zero.
func (c *cli) report(cmd *cobra.Command, res *engine.ExecutionResult, err error) error {
	if res == nil {
		return err
	}
	if c.outputJSON {
		if jerr := printJSON(cmd.OutOrStdout(), res); jerr != nil {
			return jerr
		}
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return err
}
