package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"beliefgraph/core/determinism"
)

// CLIFormatter renders reports as aligned text tables
type CLIFormatter struct{}

func (f *CLIFormatter) Format() Format {
	return FormatCLI
}

func (f *CLIFormatter) Render(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	ew.printf("Graph: %s\n", report.Graph)
	if report.Lite != nil {
		ew.printf("Lite:  %s\n", summary(report.Lite))
	}
	if report.Heavy != nil {
		ew.printf("Heavy: %s\n", summary(report.Heavy))
	}

	if len(report.Nodes) > 0 {
		ew.printf("\n")
		tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NODE\tTYPE\tLITE\tROBUSTNESS\tHEAVY")
		for _, n := range report.Nodes {
			robust := "—"
			if n.RobustnessLabel != "" {
				robust = n.RobustnessLabel
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Type, Percent(n.Lite), robust, Percent(n.Heavy))
		}
		tw.Flush()
	}

	if iv := report.Intervention; iv != nil {
		var parts []string
		determinism.RangeMapSorted(iv.Do, func(id string, v float64) bool {
			parts = append(parts, fmt.Sprintf("%s=%s", id, decimal.NewFromFloat(v).String()))
			return true
		})
		ew.printf("\ndo(%s)\n", strings.Join(parts, ", "))
		tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NODE\tBEFORE\tAFTER")
		for _, s := range iv.Nodes {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, Percent(s.Before), Percent(s.After))
		}
		tw.Flush()
	}

	if e := report.Effect; e != nil {
		ew.printf("\nATE of %s on %s\n", e.Treatment, e.Outcome)
		ew.printf("  P(%s | do(%s=1)) = %s\n", e.Outcome, e.Treatment, Percent(e.P1))
		ew.printf("  P(%s | do(%s=0)) = %s\n", e.Outcome, e.Treatment, Percent(e.P0))
		ew.printf("  effect           = %s\n", SignedPoints(e.Effect))
	}

	if q := report.Query; q != nil {
		ew.printf("\n%s {%s} ⫫ {%s} | {%s}: %t\n", q.Kind,
			strings.Join(q.X, ", "), strings.Join(q.Y, ", "), strings.Join(q.Z, ", "), q.Result)
	}

	if len(report.RunIDs) > 0 {
		ew.printf("\n")
		determinism.RangeMapSorted(report.RunIDs, func(mode, id string) bool {
			ew.printf("Saved %s run %s\n", mode, id)
			return true
		})
	}
	return ew.err
}

func summary(s *RunSummary) string {
	state := "converged"
	if !s.Converged {
		state = "did not converge"
	}
	return fmt.Sprintf("%s after %d iterations (final delta %s)", state, s.Iterations,
		decimal.NewFromFloat(s.FinalDelta).Round(6).String())
}

// errWriter keeps the first write error
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(e, format, args...)
}
