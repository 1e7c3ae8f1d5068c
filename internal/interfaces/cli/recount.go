package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// NewRecountCmd creates the recount command group.
func NewRecountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recount",
		Short: "Submit and retrieve asynchronous recounts",
		Long: "A recount runs the same aggregation as lookup, but on a background\n" +
			"worker: submit returns a request ID immediately and the result is\n" +
			"retrieved later with get, or awaited with submit --wait.",
	}

	cmd.AddCommand(
		newRecountSubmitCmd(),
		newRecountGetCmd(),
	)

	return cmd
}

func newRecountSubmitCmd() *cobra.Command {
	var (
		tryVariants  bool
		wait         bool
		pollInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <assignee>",
		Short: "Enqueue a background aggregation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			receipt, err := cliCtx.Client.Recounts().Submit(ctx, ipactivity.RecountRequest{
				Assignee:    args[0],
				TryVariants: tryVariants,
			})
			if err != nil {
				return err
			}

			if !wait {
				return PrintResult(cmd, receiptView{receipt: receipt})
			}

			result, err := cliCtx.Client.Recounts().Wait(ctx, receipt.RequestID, pollInterval)
			if err != nil {
				return fmt.Errorf("recount %s did not complete: %w", receipt.RequestID, err)
			}
			return PrintResult(cmd, recountView{result: result, verbose: cliCtx.Verbose})
		},
	}

	cmd.Flags().BoolVar(&tryVariants, "variants", false, "also query common corporate-suffix variations of the name")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the recount completes and print the result")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "polling interval used with --wait")

	return cmd
}

func newRecountGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <request-id>",
		Short: "Retrieve a completed recount by request ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			result, err := cliCtx.Client.Recounts().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, recountView{result: result, verbose: cliCtx.Verbose})
		},
	}

	return cmd
}

// receiptView renders a RecountReceipt.
type receiptView struct {
	receipt *ipactivity.RecountReceipt
}

func (v receiptView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.receipt)
}

func (v receiptView) String() string {
	return fmt.Sprintf("Recount queued.\nRequest ID:  %s\nStatus:      %s\nEnqueued at: %s",
		v.receipt.RequestID, v.receipt.Status, v.receipt.EnqueuedAt.Format(time.RFC3339))
}

// recountView renders a completed RecountResult.
type recountView struct {
	result  *ipactivity.RecountResult
	verbose bool
}

func (v recountView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.result)
}

func (v recountView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request ID:        %s\n", v.result.RequestID)
	fmt.Fprintf(&sb, "Assignee:          %s\n", v.result.Assignee)
	fmt.Fprintf(&sb, "Candidates tried:  %s\n", strings.Join(v.result.Result.TriedAssignees, ", "))
	writeAggregateCounts(&sb, &v.result.Result)
	fmt.Fprintf(&sb, "Completed at:      %s (%dms)\n",
		v.result.CompletedAt.Format(time.RFC3339), v.result.DurationMs)
	if v.verbose {
		sb.WriteString("\n")
		writeTrace(&sb, v.result.Result.Debug)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v recountView) TableHeaders() []string {
	return lookupView{result: &v.result.Result}.TableHeaders()
}

func (v recountView) TableRows() [][]string {
	return lookupView{result: &v.result.Result}.TableRows()
}
