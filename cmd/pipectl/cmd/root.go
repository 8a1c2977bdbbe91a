package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pipectl",
	Short: "pipectl is a command line tool for driving driveplane pipelines",
	Long: `pipectl is the command-line interface for the driveplane data-movement
orchestrator.

driveplane moves time-partitioned data from a source through a staging area
into a target, one window at a time, with durable per-window records,
exclusive execution and an auditing pass that is the only authority allowed
to declare a window done.

Common workflows:

  List a day's records:
    pipectl records --day 2025-01-01

  Inspect one pipeline record:
    pipectl status <pipeline-id>

  Trigger a pass outside the schedule:
    pipectl run

  Drive the oldest pending (failed or swept) record:
    pipectl run --pending

  Break stale locks now instead of waiting for the next pass:
    pipectl sweep

Configuration:
  Set the API endpoint and the internal secret via environment variables or
  a config file:
    PIPECTL_API_URL    API endpoint (default: http://localhost:8161)
    PIPECTL_TOKEN      Internal secret for the mutating endpoints`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".pipectl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".pipectl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "PIPECTL_VARNAME"
	viper.SetEnvPrefix("PIPECTL")
	viper.AutomaticEnv()

	viper.SetDefault("api_url", "http://localhost:8161")

	// Config file is optional
	_ = viper.ReadInConfig()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pipectl.yaml)")
}
