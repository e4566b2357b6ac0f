package progress

import (
	"encoding/json"

	"irmemo/internal/stream"
)

// stepsPayload is the steps-init payload.
type stepsPayload struct {
	Steps []StepGroup `json:"steps"`
}

// stepUpdatePayload is the step-update payload.
type stepUpdatePayload struct {
	Step     string          `json:"step"`
	Status   Status          `json:"status"`
	Findings json.RawMessage `json:"findings"`
}

// Reduce applies one stream event to the progress model.
// The input model is never modified.
func Reduce(model Model, ev stream.Event) Model {
	switch ev.Kind {
	case stream.KindSteps:
		return applySteps(model, ev.Payload)
	case stream.KindStepUpdate:
		return applyStepUpdate(model, ev.Payload)
	default:
		return model
	}
}

// applySteps replaces the model; the payload is authoritative for structure only.
func applySteps(model Model, payload json.RawMessage) Model {
	var body stepsPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return model
	}
	groups := make([]StepGroup, 0, len(body.Steps))
	for _, group := range body.Steps {
		children := make([]StepChild, 0, len(group.Children))
		for _, child := range group.Children {
			children = append(children, StepChild{
				ID:     child.ID,
				Label:  child.Label,
				Status: StatusPending,
			})
		}
		groups = append(groups, StepGroup{ID: group.ID, Label: group.Label, Children: children})
	}
	return Model{Groups: groups}
}

// applyStepUpdate advances one child. Unknown ids, unknown statuses and
// backward transitions leave the model unchanged.
func applyStepUpdate(model Model, payload json.RawMessage) Model {
	var body stepUpdatePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return model
	}
	if body.Status.rank() < 0 {
		return model
	}
	var findings *Findings
	if hasValue(body.Findings) {
		findings = &Findings{}
		if err := json.Unmarshal(body.Findings, findings); err != nil {
			return model
		}
	}
	for gi, group := range model.Groups {
		for ci, child := range group.Children {
			if child.ID != body.Step {
				continue
			}
			if !canAdvance(child.Status, body.Status) {
				return model
			}
			next := model.clone()
			updated := &next.Groups[gi].Children[ci]
			updated.Status = body.Status
			if findings != nil {
				updated.Findings = findings
			}
			return next
		}
	}
	return model
}

// canAdvance reports whether a child may move from one status to another.
func canAdvance(from, to Status) bool {
	if from.Terminal() {
		return to == from
	}
	return to.rank() >= from.rank()
}

// hasValue reports whether a raw JSON field was present and not null.
func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// GroupStatus derives a group's status from its children.
func GroupStatus(group StepGroup) Status {
	if len(group.Children) == 0 {
		return StatusPending
	}
	var pending, running, complete, failed int
	for _, child := range group.Children {
		switch child.Status {
		case StatusRunning:
			running++
		case StatusComplete:
			complete++
		case StatusError:
			failed++
		default:
			pending++
		}
	}
	switch {
	case pending == len(group.Children):
		return StatusPending
	case running > 0:
		return StatusRunning
	case failed > 0:
		return StatusError
	case complete == len(group.Children):
		return StatusComplete
	default:
		return StatusRunning
	}
}
