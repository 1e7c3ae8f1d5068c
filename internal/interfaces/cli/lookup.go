package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// NewLookupCmd creates the synchronous aggregation command.
func NewLookupCmd() *cobra.Command {
	var tryVariants bool

	cmd := &cobra.Command{
		Use:   "lookup <assignee>",
		Short: "Aggregate IP activity for an assignee name",
		Long: "Lookup queries the configured patent, trademark and pending-application\n" +
			"registries for one assignee name and prints the merged counts.  With\n" +
			"--variants the server also queries common corporate-suffix variations\n" +
			"(LLC, Inc, Corp, ...) and merges their results.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			result, err := cliCtx.Client.IPData().Aggregate(ctx, args[0], tryVariants)
			if err != nil {
				return err
			}

			return PrintResult(cmd, lookupView{result: result, verbose: cliCtx.Verbose})
		},
	}

	cmd.Flags().BoolVar(&tryVariants, "variants", false, "also query common corporate-suffix variations of the name")

	return cmd
}

// lookupView renders an AggregateResult for the three output formats.
type lookupView struct {
	result  *ipactivity.AggregateResult
	verbose bool
}

// MarshalJSON forwards to the wrapped result so `-o json` emits the API
// response unchanged.
func (v lookupView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.result)
}

func (v lookupView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assignee:          %s\n", v.result.AssigneeQueried)
	fmt.Fprintf(&sb, "Candidates tried:  %s\n", strings.Join(v.result.TriedAssignees, ", "))
	writeAggregateCounts(&sb, v.result)
	if v.verbose {
		sb.WriteString("\n")
		writeTrace(&sb, v.result.Debug)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v lookupView) TableHeaders() []string {
	return []string{"METRIC", "COUNT"}
}

func (v lookupView) TableRows() [][]string {
	return [][]string{
		{"patents", strconv.Itoa(v.result.Patents)},
		{"trademarks", strconv.Itoa(v.result.Trademarks)},
		{"pendingApps", strconv.Itoa(v.result.PendingApps)},
		{"provisionals", strconv.Itoa(v.result.Provisionals)},
		{"pctApps", strconv.Itoa(v.result.PCTApps)},
		{"foreignNational", strconv.Itoa(v.result.ForeignNational)},
	}
}

// writeAggregateCounts prints the metric block shared by lookup and recount
// text output.
func writeAggregateCounts(sb *strings.Builder, r *ipactivity.AggregateResult) {
	fmt.Fprintf(sb, "Patents:           %d\n", r.Patents)
	fmt.Fprintf(sb, "Trademarks:        %d\n", r.Trademarks)
	fmt.Fprintf(sb, "Pending apps:      %d\n", r.PendingApps)
	fmt.Fprintf(sb, "Provisionals:      %d\n", r.Provisionals)
	fmt.Fprintf(sb, "PCT apps:          %d\n", r.PCTApps)
	fmt.Fprintf(sb, "Foreign national:  %d\n", r.ForeignNational)
}

// writeTrace prints one line per lookup attempt in candidate order.
func writeTrace(sb *strings.Builder, trace []ipactivity.TraceEntry) {
	sb.WriteString("Lookup trace:\n")
	for _, e := range trace {
		status := fmt.Sprintf("ok count=%d", e.Count)
		if !e.OK {
			status = "failed " + e.Error
			if e.Status != 0 {
				status = fmt.Sprintf("%s (%d)", status, e.Status)
			}
		}
		fmt.Fprintf(sb, "  %-20s %-30s %s\n", e.Source, e.Candidate, status)
	}
}
