package memo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"irmemo/internal/progress"
)

// DateLayout is the memo date format.
const DateLayout = "January 02, 2006"

// SectionOrder is the display order of the known sections.
var SectionOrder = []string{"bio", "forecast", "earnings", "peer", "valuation"}

// SectionKind distinguishes section payload shapes.
type SectionKind string

const (
	// KindNarrative is a prose section with sources and confidence.
	KindNarrative SectionKind = "narrative"
	// KindForecast is the analyst forecast table.
	KindForecast SectionKind = "forecast"
	// KindValuation is the peer valuation table.
	KindValuation SectionKind = "valuation"
)

// Document is the result of one memo run.
type Document struct {
	MemoID       string             `json:"memo_id,omitempty"`
	AnalystName  string             `json:"analyst_name,omitempty"`
	FirmName     string             `json:"firm_name,omitempty"`
	Company      string             `json:"company,omitempty"`
	Date         string             `json:"date,omitempty"`
	Sections     map[string]Section `json:"sections,omitempty"`
	QualityCheck *QualityCheck      `json:"quality_check,omitempty"`
	Summary      *Summary           `json:"summary,omitempty"`
}

// Confidence is the backend's confidence rating for a section.
type Confidence struct {
	Level  string `json:"level"`
	Reason string `json:"reason,omitempty"`
}

// Section is one populated memo section.
type Section struct {
	ID         string            `json:"id"`
	Kind       SectionKind       `json:"kind"`
	Type       string            `json:"type,omitempty"`
	Content    string            `json:"content,omitempty"`
	Sources    []progress.Source `json:"sources,omitempty"`
	Confidence *Confidence       `json:"confidence,omitempty"`
	Forecast   *Forecast         `json:"forecast,omitempty"`
	Valuation  *Valuation        `json:"valuation,omitempty"`
	Raw        json.RawMessage   `json:"raw,omitempty"`
}

// ForecastRow is one metric line of the forecast table.
type ForecastRow struct {
	Label     string `json:"label"`
	Indent    int    `json:"indent"`
	Analyst   any    `json:"analyst"`
	Consensus any    `json:"consensus"`
	Delta     string `json:"delta"`
}

// Missing reports whether either side of the comparison is absent.
func (r ForecastRow) Missing() bool {
	return r.Analyst == nil || r.Consensus == nil
}

// Forecast is the forecast-ready payload.
type Forecast struct {
	AnalystName string        `json:"analyst_name,omitempty"`
	Firm        string        `json:"firm,omitempty"`
	DateUpdated string        `json:"date_updated,omitempty"`
	IsStale     bool          `json:"is_stale"`
	Rows        []ForecastRow `json:"table_rows"`
	Rating      string        `json:"rating,omitempty"`
	PriceTarget any           `json:"price_target"`
}

// Metrics maps a metric label to a number, a placeholder string, or nil.
type Metrics map[string]any

// Valuation is the valuation-ready payload.
type Valuation struct {
	AnalystName string             `json:"analyst_name,omitempty"`
	Firm        string             `json:"firm,omitempty"`
	Tickers     map[string]Metrics `json:"tickers"`
	TickerOrder []string           `json:"ticker_order,omitempty"`
	AsOf        string             `json:"as_of,omitempty"`
	PeerMedian  Metrics            `json:"peer_median,omitempty"`
}

// Failed lists tickers without a stock price, in ticker order.
func (v *Valuation) Failed() []string {
	var failed []string
	for _, ticker := range v.TickerOrder {
		if v.Tickers[ticker]["Stock Price"] == nil {
			failed = append(failed, ticker)
		}
	}
	return failed
}

// QualityCheck is the quality-ready payload.
type QualityCheck struct {
	OverallStatus string                     `json:"overall_status"`
	Summary       string                     `json:"summary,omitempty"`
	Sections      map[string]json.RawMessage `json:"sections,omitempty"`
}

// Section returns the section with the given id.
func (d Document) Section(id string) (Section, bool) {
	section, ok := d.Sections[id]
	return section, ok
}

// SectionIDs returns populated section ids, known sections first.
func (d Document) SectionIDs() []string {
	ids := make([]string, 0, len(d.Sections))
	seen := make(map[string]bool, len(d.Sections))
	for _, id := range SectionOrder {
		if _, ok := d.Sections[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	var extra []string
	for id := range d.Sections {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

// clone copies the sections map so the input document is left untouched.
func (d Document) clone() Document {
	sections := make(map[string]Section, len(d.Sections)+1)
	for id, section := range d.Sections {
		sections[id] = section
	}
	d.Sections = sections
	return d
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
