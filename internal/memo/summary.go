package memo

import (
	"sort"
	"strings"
)

// Summary holds statistics derived from a finished document.
type Summary struct {
	Sections        int            `json:"sections"`
	NarrativeWords  int            `json:"narrative_words"`
	SourceDomains   []string       `json:"source_domains,omitempty"`
	Confidence      map[string]int `json:"confidence,omitempty"`
	ForecastRows    int            `json:"forecast_rows"`
	MissingForecast int            `json:"missing_forecast"`
	Tickers         int            `json:"tickers"`
	FailedTickers   []string       `json:"failed_tickers,omitempty"`
}

// Summarize computes the document summary.
func Summarize(doc Document) *Summary {
	summary := &Summary{Sections: len(doc.Sections), Confidence: map[string]int{}}
	domains := map[string]bool{}
	for _, id := range doc.SectionIDs() {
		section := doc.Sections[id]
		for _, source := range section.Sources {
			if source.Domain != "" {
				domains[source.Domain] = true
			}
		}
		if section.Confidence != nil && section.Confidence.Level != "" {
			summary.Confidence[strings.ToLower(section.Confidence.Level)]++
		}
		switch section.Kind {
		case KindNarrative:
			summary.NarrativeWords += len(strings.Fields(section.Content))
		case KindForecast:
			if section.Forecast == nil {
				continue
			}
			summary.ForecastRows += len(section.Forecast.Rows)
			for _, row := range section.Forecast.Rows {
				if row.Missing() {
					summary.MissingForecast++
				}
			}
		case KindValuation:
			if section.Valuation == nil {
				continue
			}
			summary.Tickers += len(section.Valuation.TickerOrder)
			summary.FailedTickers = append(summary.FailedTickers, section.Valuation.Failed()...)
		}
	}
	for domain := range domains {
		summary.SourceDomains = append(summary.SourceDomains, domain)
	}
	sort.Strings(summary.SourceDomains)
	return summary
}
