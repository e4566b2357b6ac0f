package memo

import (
	"encoding/json"
	"time"

	"irmemo/internal/progress"
	"irmemo/internal/stream"
)

// Accumulator merges result events into a Document.
type Accumulator struct {
	// Analyst is the requested analyst, used when the backend never names one.
	Analyst string
	// Scope limits section writes to one section id during regeneration.
	Scope string
	// Now supplies the memo date; time.Now when nil.
	Now func() time.Time
}

type narrativePayload struct {
	Section    string            `json:"section"`
	Content    string            `json:"content"`
	Type       string            `json:"type"`
	Sources    []progress.Source `json:"sources"`
	Confidence *Confidence       `json:"confidence"`
}

type tablePayload struct {
	Sources    []progress.Source `json:"sources"`
	Confidence *Confidence       `json:"confidence"`
	Tickers    json.RawMessage   `json:"tickers"`
}

type completePayload struct {
	MemoID string `json:"memo_id"`
}

// Apply merges one event and returns the updated document.
// The input document is never modified.
func (a Accumulator) Apply(doc Document, ev stream.Event) Document {
	switch ev.Kind {
	case stream.KindSection, stream.KindRegenSection:
		return a.applyNarrative(doc, ev.Payload)
	case stream.KindForecast, stream.KindRegenForecast:
		return a.applyForecast(doc, ev.Payload)
	case stream.KindValuation, stream.KindRegenValuation:
		return a.applyValuation(doc, ev.Payload)
	case stream.KindQualityCheck:
		return applyQuality(doc, ev.Payload)
	case stream.KindComplete:
		return a.finalize(doc, ev.Payload)
	case stream.KindRegenComplete:
		doc = doc.clone()
		doc.Summary = Summarize(doc)
		return doc
	default:
		return doc
	}
}

func (a Accumulator) inScope(id string) bool {
	return a.Scope == "" || a.Scope == id
}

func (a Accumulator) applyNarrative(doc Document, payload json.RawMessage) Document {
	var body narrativePayload
	if err := json.Unmarshal(payload, &body); err != nil || body.Section == "" {
		return doc
	}
	if !a.inScope(body.Section) {
		return doc
	}
	kind := body.Type
	if kind == "" {
		kind = string(KindNarrative)
	}
	doc = doc.clone()
	doc.Sections[body.Section] = Section{
		ID:         body.Section,
		Kind:       KindNarrative,
		Type:       kind,
		Content:    body.Content,
		Sources:    body.Sources,
		Confidence: body.Confidence,
		Raw:        payload,
	}
	return doc
}

func (a Accumulator) applyForecast(doc Document, payload json.RawMessage) Document {
	const id = "forecast"
	if !a.inScope(id) {
		return doc
	}
	var forecast Forecast
	var meta tablePayload
	if err := json.Unmarshal(payload, &forecast); err != nil {
		return doc
	}
	if err := json.Unmarshal(payload, &meta); err != nil {
		return doc
	}
	doc = doc.clone()
	doc.Sections[id] = Section{
		ID:         id,
		Kind:       KindForecast,
		Sources:    meta.Sources,
		Confidence: meta.Confidence,
		Forecast:   &forecast,
		Raw:        payload,
	}
	fillIdentity(&doc, forecast.AnalystName, forecast.Firm)
	return doc
}

func (a Accumulator) applyValuation(doc Document, payload json.RawMessage) Document {
	const id = "valuation"
	if !a.inScope(id) {
		return doc
	}
	var valuation Valuation
	var meta tablePayload
	if err := json.Unmarshal(payload, &valuation); err != nil {
		return doc
	}
	if err := json.Unmarshal(payload, &meta); err != nil {
		return doc
	}
	if len(valuation.TickerOrder) == 0 && len(meta.Tickers) > 0 {
		if keys, err := objectKeys(meta.Tickers); err == nil {
			valuation.TickerOrder = keys
		}
	}
	doc = doc.clone()
	doc.Sections[id] = Section{
		ID:         id,
		Kind:       KindValuation,
		Sources:    meta.Sources,
		Confidence: meta.Confidence,
		Valuation:  &valuation,
		Raw:        payload,
	}
	fillIdentity(&doc, valuation.AnalystName, valuation.Firm)
	return doc
}

func applyQuality(doc Document, payload json.RawMessage) Document {
	var check QualityCheck
	if err := json.Unmarshal(payload, &check); err != nil {
		return doc
	}
	doc = doc.clone()
	doc.QualityCheck = &check
	return doc
}

func (a Accumulator) finalize(doc Document, payload json.RawMessage) Document {
	var body completePayload
	_ = json.Unmarshal(payload, &body)
	doc = doc.clone()
	if body.MemoID != "" {
		doc.MemoID = body.MemoID
	}
	if doc.Date == "" {
		doc.Date = a.now().Format(DateLayout)
	}
	if doc.AnalystName == "" {
		doc.AnalystName = a.Analyst
	}
	doc.Summary = Summarize(doc)
	return doc
}

func (a Accumulator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// fillIdentity sets analyst and firm only when still unset.
func fillIdentity(doc *Document, analyst, firm string) {
	if doc.AnalystName == "" && analyst != "" {
		doc.AnalystName = analyst
	}
	if doc.FirmName == "" && firm != "" {
		doc.FirmName = firm
	}
}
