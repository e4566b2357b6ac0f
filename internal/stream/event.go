package stream

import "encoding/json"

// Kind identifies a typed stream event.
type Kind string

const (
	// KindSteps replaces the progress structure.
	KindSteps Kind = "steps-init"
	// KindStepUpdate changes the status or findings of one step.
	KindStepUpdate Kind = "step-update"
	// KindSection delivers a narrative section.
	KindSection Kind = "section-ready"
	// KindForecast delivers the forecast table payload.
	KindForecast Kind = "forecast-ready"
	// KindValuation delivers the valuation table payload.
	KindValuation Kind = "valuation-ready"
	// KindQualityCheck delivers the quality check verdict.
	KindQualityCheck Kind = "quality-ready"
	// KindComplete marks successful job completion.
	KindComplete Kind = "job-complete"
	// KindError marks a job failure reported by the backend.
	KindError Kind = "job-error"

	// KindRegenStart marks the start of a section regeneration.
	KindRegenStart Kind = "regen-start"
	// KindRegenStep reports a regeneration sub-step.
	KindRegenStep Kind = "regen-step"
	// KindRegenSection delivers a regenerated narrative section.
	KindRegenSection Kind = "regen-section"
	// KindRegenForecast delivers a regenerated forecast payload.
	KindRegenForecast Kind = "regen-forecast"
	// KindRegenValuation delivers a regenerated valuation payload.
	KindRegenValuation Kind = "regen-valuation"
	// KindRegenComplete marks successful regeneration.
	KindRegenComplete Kind = "regen-complete"
	// KindRegenError marks a regeneration failure reported by the backend.
	KindRegenError Kind = "regen-error"

	// KindTransportError marks a connection-level failure. It carries Err and no payload.
	KindTransportError Kind = "transport-error"
)

// Event is one typed unit delivered by a stream adapter.
type Event struct {
	Kind    Kind
	Payload json.RawMessage
	Err     error
}

// Terminal reports whether the event ends its connection.
func (e Event) Terminal() bool {
	return IsTerminal(e.Kind)
}

// IsTerminal reports whether a kind closes the connection that delivered it.
func IsTerminal(kind Kind) bool {
	switch kind {
	case KindComplete, KindError, KindRegenComplete, KindRegenError, KindTransportError:
		return true
	default:
		return false
	}
}

// IsRegen reports whether a kind belongs to the regeneration stream.
func IsRegen(kind Kind) bool {
	switch kind {
	case KindRegenStart, KindRegenStep, KindRegenSection, KindRegenForecast,
		KindRegenValuation, KindRegenComplete, KindRegenError:
		return true
	default:
		return false
	}
}

// jobKinds maps push-transport event names to kinds.
var jobKinds = map[string]Kind{
	"steps":         KindSteps,
	"step_update":   KindStepUpdate,
	"section":       KindSection,
	"forecast":      KindForecast,
	"valuation":     KindValuation,
	"quality_check": KindQualityCheck,
	"complete":      KindComplete,
	"server_error":  KindError,
}

// regenKinds maps chunked-transport event names to kinds.
var regenKinds = map[string]Kind{
	"regen_start":     KindRegenStart,
	"regen_step":      KindRegenStep,
	"regen_section":   KindRegenSection,
	"regen_forecast":  KindRegenForecast,
	"regen_valuation": KindRegenValuation,
	"regen_complete":  KindRegenComplete,
	"regen_error":     KindRegenError,
}

// JobKind resolves a push-transport event name.
func JobKind(name string) (Kind, bool) {
	kind, ok := jobKinds[name]
	return kind, ok
}

// RegenKind resolves a chunked-transport event name.
func RegenKind(name string) (Kind, bool) {
	kind, ok := regenKinds[name]
	return kind, ok
}

// WireName returns the backend event name for a kind, or "" for transport errors.
func WireName(kind Kind) string {
	for name, k := range jobKinds {
		if k == kind {
			return name
		}
	}
	for name, k := range regenKinds {
		if k == kind {
			return name
		}
	}
	return ""
}

// anyKind resolves names from either table; used when replaying captured streams.
func anyKind(name string) (Kind, bool) {
	if kind, ok := jobKinds[name]; ok {
		return kind, true
	}
	return RegenKind(name)
}
