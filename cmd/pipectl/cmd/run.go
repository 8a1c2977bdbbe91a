package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runPending bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger a pipeline pass outside the schedule",
	Long: `Trigger one pipeline pass immediately. The default pass generates the
next window and drives it through validation, the ingestion phases and the
audit. With --pending, the pass instead picks the oldest PENDING record
(typically one reset after a failed phase or by the sweeper) and drives it
through the locked phases. Records left FAILED by a failed audit are not
picked.

Requires PIPECTL_TOKEN to be set to the orchestrator's internal secret.`,
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("Internal secret not found. Please set it via the PIPECTL_TOKEN environment variable")
			return
		}

		client := NewPipeClient(viper.GetString("api_url"), token)

		run, err := client.TriggerRun(runPending)
		if err != nil {
			cmd.Printf("Run failed: %v\n", err)
			return
		}

		if run.Skipped {
			cmd.Printf("%s Run %s skipped: %s (swept %d)\n",
				colorYellow+"→"+colorReset, run.RunID, run.SkipReason, run.Swept)
			return
		}
		cmd.Printf("%s Run %s finished pipeline %s (swept %d)\n",
			colorGreen+"✓"+colorReset, run.RunID, run.PipelineID, run.Swept)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runPending, "pending", false, "drive the oldest pending record instead of generating")
	rootCmd.AddCommand(runCmd)
}
