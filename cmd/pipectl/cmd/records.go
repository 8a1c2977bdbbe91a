package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var recordsDay string

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List pipeline records for a target day",
	Long: `List all pipeline records of the configured identity for one target
day, oldest window first. Shows each record's window, status and retries.`,
	Run: func(cmd *cobra.Command, args []string) {
		if recordsDay == "" {
			cmd.Println("--day is required (YYYY-MM-DD)")
			return
		}

		client := NewPipeClient(viper.GetString("api_url"), viper.GetString("token"))

		records, err := client.ListRecords(recordsDay)
		if err != nil {
			cmd.Printf("Failed to list records: %v\n", err)
			return
		}

		if len(records) == 0 {
			cmd.Printf("No records for %s\n", recordsDay)
			return
		}

		cmd.Printf("%s%-34s %-13s %-13s %-12s %s%s\n", colorBold,
			"PIPELINE ID", "WINDOW START", "WINDOW END", "STATUS", "RETRIES", colorReset)
		for _, rec := range records {
			cmd.Printf("%-34s %-13s %-13s %-21s %d\n",
				rec.PipelineID,
				rec.WindowStart.Format("15:04:05"),
				rec.WindowEnd.Format("15:04:05"),
				colorizeStatus(rec.PipelineStatus),
				rec.RetryAttempt,
			)
		}
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsDay, "day", "", "target day to list (YYYY-MM-DD)")
	rootCmd.AddCommand(recordsCmd)
}
