package cli

import (
	"fmt"
	"io"
	"strings"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
	"irmemo/internal/session"
	"irmemo/internal/ui/live"
)

// printRunSummary prints the final state of a job run.
func printRunSummary(w io.Writer, snap session.Snapshot) {
	doc := snap.Document
	fmt.Fprintln(w)
	header := "Memo"
	if doc.MemoID != "" {
		header += " " + doc.MemoID
	}
	if doc.Company != "" {
		header += " (" + doc.Company + ")"
	}
	if doc.AnalystName != "" {
		header += " by " + doc.AnalystName
		if doc.FirmName != "" {
			header += ", " + doc.FirmName
		}
	}
	if doc.Date != "" {
		header += " on " + doc.Date
	}
	fmt.Fprintln(w, header)
	printProgress(w, snap.Progress)
	printDocument(w, doc)
	if snap.Err != nil {
		fmt.Fprintf(w, "Error: %v\n", snap.Err)
	}
}

func printProgress(w io.Writer, model progress.Model) {
	if model.Total() == 0 {
		return
	}
	counts := model.Counts()
	fmt.Fprintf(w, "Steps: %d/%d complete, %d error, %d running, %d pending\n",
		counts[progress.StatusComplete], model.Total(), counts[progress.StatusError],
		counts[progress.StatusRunning], counts[progress.StatusPending])
}

func printDocument(w io.Writer, doc memo.Document) {
	ids := doc.SectionIDs()
	if len(ids) == 0 {
		fmt.Fprintln(w, "No sections.")
		return
	}
	fmt.Fprintln(w, "Sections:")
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", live.SectionLine(doc.Sections[id]))
	}
	if qc := doc.QualityCheck; qc != nil {
		fmt.Fprintf(w, "Quality: %s\n", qc.OverallStatus)
	}
	if s := doc.Summary; s != nil {
		fmt.Fprintf(w, "Summary: %d sections, %d narrative words, %d source domains\n",
			s.Sections, s.NarrativeWords, len(s.SourceDomains))
		if s.MissingForecast > 0 {
			fmt.Fprintf(w, "  %d forecast rows missing analyst values\n", s.MissingForecast)
		}
		if len(s.FailedTickers) > 0 {
			fmt.Fprintf(w, "  valuation failed for %s\n", strings.Join(s.FailedTickers, ", "))
		}
	}
}

// printSection prints a regenerated section.
func printSection(w io.Writer, section memo.Section) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, live.SectionLine(section))
	if section.Content != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, section.Content)
	}
}
