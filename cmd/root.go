package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/queuesim/queuesim/sim"
	"github.com/queuesim/queuesim/sim/controller"
)

var (
	// CLI flags
	configPath string // Path to the YAML run configuration
	logLevel   string // Log verbosity level

	// Overrides applied on top of the config file
	scenarioPath string
	numParts     int
	endTime      int
	outputDir    string
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "queuesim",
	Short: "Partitioned queue-based mobility simulator",
}

// runCmd executes a simulation run from a config file plus flag overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if configPath == "" {
			logrus.Fatalf("No run configuration provided. Exiting.")
		}
		cfg, err := sim.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Unable to read run configuration: %v", err)
		}
		if scenarioPath != "" {
			cfg.Scenario.Path = scenarioPath
		}
		if numParts != 0 {
			cfg.Partitioning.NumParts = numParts
		}
		if endTime != 0 {
			cfg.Simulation.EndTime = endTime
		}
		if outputDir != "" {
			cfg.Output.Directory = outputDir
		}

		// A fatal error in any partition cancels the whole run, as does an
		// interrupt from the terminal.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		res, err := controller.Run(ctx, cfg)
		if err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}

		logrus.Infof("Simulation complete in %v: %d agents done, travel times for %d links collected.",
			time.Since(startTime), res.DoneAgents, len(res.TravelTimes))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML run configuration")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Override the scenario container path")
	runCmd.Flags().IntVar(&numParts, "num-parts", 0, "Override the partition count")
	runCmd.Flags().IntVar(&endTime, "end-time", 0, "Override the simulation end time (seconds)")
	runCmd.Flags().StringVar(&outputDir, "output", "", "Override the output directory")

	rootCmd.AddCommand(runCmd)
}
