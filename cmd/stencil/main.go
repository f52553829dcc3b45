package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ult/internal/rtlog"
	"ult/internal/runtimeconfig"
	"ult/internal/version"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := runtimeconfig.Config

	root := &cobra.Command{
		Use:   "stencil",
		Short: "Fork-join-revive 2D heat-stencil example for the ult runtime",
		Long: `stencil drives a 2D Jacobi heat-diffusion solver where every grid
block is a ULT, revived rather than recreated between iterations, and a
coordinator ULT runs the join-all/swap/revive-all barrier each round.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := runtimeconfig.InitConfig(false, cmd); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if configFile != "" {
				if err := runtimeconfig.SetConfigFile(configFile); err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(1)
				}
			}
			rtlog.Configure(rtlog.Config{
				Level:  rtlog.ParseLevel(cfg.LogLevel),
				Format: rtlog.ParseFormat(cfg.LogFormat),
			})
			runtimeconfig.LogConfigurationSources(cfg.LogLevel == "DEBUG", cmd)
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log output format (text or json)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().IntVar(&cfg.ExecutionStreams, "streams", cfg.ExecutionStreams, "execution streams (1 = primary only; any larger value adds one secondary)")
	root.PersistentFlags().StringVar(&cfg.SchedulerKind, "scheduler", cfg.SchedulerKind, "scheduler kind (basic or priority)")

	root.AddCommand(newRunCmd(cfg))
	root.AddCommand(newBenchCmd(cfg))
	root.AddCommand(newVersionCmd())

	if err := runtimeconfig.CreateDefaultConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: ", err)
	}

	return root
}

func newRunCmd(cfg *runtimeconfig.GlobalConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stencil solver once and report its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStencil(cfg)
		},
	}
	addStencilFlags(cmd, cfg)
	return cmd
}

func newBenchCmd(cfg *runtimeconfig.GlobalConfig) *cobra.Command {
	var repeats int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the stencil solver repeatedly and report timing",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := 0; i < repeats; i++ {
				start := time.Now()
				if err := runStencil(cfg); err != nil {
					return err
				}
				rtlog.Info("bench run complete", map[string]interface{}{
					"run": i, "elapsed": time.Since(start).String(),
				})
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&repeats, "repeats", 5, "number of solver runs to time")
	addStencilFlags(cmd, cfg)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stencil %s\n", version.String())
		},
	}
}

func addStencilFlags(cmd *cobra.Command, cfg *runtimeconfig.GlobalConfig) {
	cmd.Flags().IntVar(&cfg.GridWidth, "width", cfg.GridWidth, "grid width")
	cmd.Flags().IntVar(&cfg.GridHeight, "height", cfg.GridHeight, "grid height")
	cmd.Flags().IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "fork-join-revive rounds")
	cmd.Flags().BoolVar(&cfg.CheckAgainstSerial, "check", cfg.CheckAgainstSerial, "compare against a serial reference solver")
	cmd.Flags().StringVar(&cfg.OutputDir, "output-dir", "", "directory to write per-iteration grid snapshots (disabled if empty)")
	cmd.Flags().BoolVar(&cfg.ShowProgress, "progress", false, "show an iteration progress bar")
}

func runStencil(cfg *runtimeconfig.GlobalConfig) error {
	start := time.Now()
	result, err := Run(cfg)
	if err != nil {
		return fmt.Errorf("stencil run: %w", err)
	}
	rtlog.Info("stencil solve complete", map[string]interface{}{
		"elapsed":    time.Since(start).String(),
		"iterations": cfg.Iterations,
		"width":      cfg.GridWidth,
		"height":     cfg.GridHeight,
	})

	if cfg.CheckAgainstSerial {
		reference := SerialSolve(cfg.GridWidth, cfg.GridHeight, cfg.Iterations)
		diff := result.MaxDiff(reference)
		rtlog.Info("serial comparison", map[string]interface{}{"max_divergence": diff})
		if diff > 1e-9 {
			return fmt.Errorf("parallel result diverges from serial reference by %g", diff)
		}
	}
	return nil
}
