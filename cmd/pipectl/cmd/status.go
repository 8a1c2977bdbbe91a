package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"driveplane/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [pipeline_id]",
	Short: "Get the state of one pipeline record",
	Long: `Retrieve the full state of a pipeline record: its window, per-phase
statuses, lock owner, audit result and reconciliation counts.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewPipeClient(viper.GetString("api_url"), viper.GetString("token"))

		rec, err := client.GetRecord(args[0])
		if err != nil {
			cmd.Printf("Failed to fetch record: %v\n", err)
			return
		}

		printRecord(cmd, rec)
	},
}

func printRecord(cmd *cobra.Command, rec *api.RecordResponse) {
	cmd.Printf("%s %sPipeline Record%s\n", statusIcon(rec.PipelineStatus), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s            %s\n", colorDim, colorReset, rec.PipelineID)
	cmd.Printf("%sStatus:%s        %s\n", colorDim, colorReset, colorizeStatus(rec.PipelineStatus))
	cmd.Printf("%sTarget Day:%s    %s\n", colorDim, colorReset, rec.TargetDay)
	cmd.Printf("%sWindow:%s        [%s, %s)  (%s)\n", colorDim, colorReset,
		rec.WindowStart.Format(time.RFC3339), rec.WindowEnd.Format(time.RFC3339), rec.Granularity)

	cmd.Printf("%sSource→Stage:%s  %s\n", colorDim, colorReset, colorizeStatus(rec.SourceToStage.Status))
	cmd.Printf("%sStage→Target:%s  %s\n", colorDim, colorReset, colorizeStatus(rec.StageToTarget.Status))
	cmd.Printf("%sAudit:%s         %s\n", colorDim, colorReset, colorizeStatus(rec.Audit.Status))

	if rec.CompletedPhase != nil {
		cmd.Printf("%sCompleted:%s     %s\n", colorDim, colorReset, *rec.CompletedPhase)
	}
	if rec.DagRunID != nil {
		cmd.Printf("%sLock Owner:%s    %s\n", colorDim, colorReset, *rec.DagRunID)
	}
	if rec.AuditResult != nil {
		cmd.Printf("%sAudit Result:%s  %s\n", colorDim, colorReset, *rec.AuditResult)
	}
	if rec.SourceCount != nil && rec.TargetCount != nil {
		cmd.Printf("%sCounts:%s        source=%d target=%d diff=%s\n", colorDim, colorReset,
			*rec.SourceCount, *rec.TargetCount, formatDiff(rec.CountDifference))
	}
	cmd.Printf("%sRetries:%s       %d\n", colorDim, colorReset, rec.RetryAttempt)
	if rec.StagePath != "" {
		cmd.Printf("%sStage Path:%s    %s\n", colorDim, colorReset, rec.StagePath)
	}
}

func formatDiff(diff *int64) string {
	if diff == nil {
		return "-"
	}
	if *diff > 0 {
		return fmt.Sprintf("%s+%d%s", colorRed, *diff, colorReset)
	}
	if *diff < 0 {
		return fmt.Sprintf("%s%d%s", colorYellow, *diff, colorReset)
	}
	return fmt.Sprintf("%s0%s", colorGreen, colorReset)
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "COMPLETED":
		return colorGreen + "✓" + colorReset
	case "FAILED":
		return colorRed + "✗" + colorReset
	case "IN_PROGRESS":
		return colorYellow + "⏳" + colorReset
	case "PENDING":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "COMPLETED":
		return icon + " " + colorGreen + status + colorReset
	case "FAILED":
		return icon + " " + colorRed + status + colorReset
	case "IN_PROGRESS":
		return icon + " " + colorYellow + status + colorReset
	case "PENDING":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
