package plan

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Render writes the human-readable run summary. Dry runs use "would apply"
// language but keep the exact structure of a real run's report, so operators
// can diff the two outputs.
func (r *Report) Render(w io.Writer) {
	verb := "applied"
	title := "Run summary"
	if r.CheckMode {
		verb = "would apply"
		title = "Dry-run summary"
	}
	if r.Aborted {
		title += " (aborted)"
	}
	fmt.Fprintf(w, "\n%s (run %s):\n", title, r.RunID)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Phase", "Node", "Role", "Status", "Changes", "Message"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, res := range r.Results() {
		table.Append([]string{
			res.Phase,
			res.Node,
			res.Role,
			colorStatus(res.Status),
			fmt.Sprintf("%d %s", res.Changed, verb),
			res.Message,
		})
	}
	table.Render()

	switch {
	case r.Aborted:
		color.New(color.FgRed).Fprintln(w, "Run aborted before all phases completed.")
	case r.Failed():
		color.New(color.FgRed).Fprintln(w, "Run failed: a control-plane node did not complete all phases.")
		fmt.Fprintln(w, "Re-run with --tags limited to the failed phase and --limit on the failed node to isolate the problem.")
	case r.HasFailures():
		color.New(color.FgYellow).Fprintln(w, "Run completed with worker failures; the control plane is healthy.")
	case r.CheckMode:
		color.New(color.FgCyan).Fprintln(w, "Check mode: no remote state was changed.")
	default:
		color.New(color.FgGreen).Fprintln(w, "All phases completed.")
		fmt.Fprintln(w, "Next step (manual): install a CNI network fabric, e.g. kubectl apply the manifest of your chosen CNI.")
	}
}

func colorStatus(s Status) string {
	switch s {
	case StatusSuccess:
		return color.GreenString(string(s))
	case StatusFailed:
		return color.RedString(string(s))
	case StatusSkipped:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
