package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Break stale pipeline locks now",
	Long: `Run the stale-lock sweeper immediately instead of waiting for the next
scheduled pass. Records that have been IN_PROGRESS beyond the configured
threshold get their lock broken and their unfinished phases reset.

Requires PIPECTL_TOKEN to be set to the orchestrator's internal secret.`,
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("Internal secret not found. Please set it via the PIPECTL_TOKEN environment variable")
			return
		}

		client := NewPipeClient(viper.GetString("api_url"), token)

		sweep, err := client.TriggerSweep()
		if err != nil {
			cmd.Printf("Sweep failed: %v\n", err)
			return
		}

		cmd.Printf("Cleaned %d stale lock(s)\n", sweep.Cleaned)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
