package progress

// Disclosure tracks the single expanded findings panel. Empty ids mean none.
type Disclosure struct {
	Expanded    string `json:"expanded,omitempty"`
	LastRunning string `json:"last_running,omitempty"`
}

// Observe applies the automatic expand/collapse rules to a new model.
func (d Disclosure) Observe(model Model) Disclosure {
	running, latest := scanDisclosure(model)
	switch {
	case running != "" && running != d.LastRunning:
		return Disclosure{LastRunning: running}
	case d.LastRunning != "" && d.LastRunning == latest:
		return Disclosure{Expanded: latest}
	case running == "" && latest != "" && d.Expanded == "":
		d.Expanded = latest
		return d
	default:
		return d
	}
}

// Toggle expands id, or collapses it when it is already expanded.
func (d Disclosure) Toggle(id string) Disclosure {
	if d.Expanded == id {
		d.Expanded = ""
		return d
	}
	d.Expanded = id
	return d
}

// Expand opens the findings of id, closing any other panel.
func (d Disclosure) Expand(id string) Disclosure {
	d.Expanded = id
	return d
}

// Collapse closes any expanded panel.
func (d Disclosure) Collapse() Disclosure {
	d.Expanded = ""
	return d
}

// scanDisclosure finds the running child and the last complete child with
// findings, in display order.
func scanDisclosure(model Model) (running, latest string) {
	for _, group := range model.Groups {
		for _, child := range group.Children {
			switch {
			case child.Status == StatusRunning:
				running = child.ID
			case child.Status == StatusComplete && child.Findings != nil:
				latest = child.ID
			}
		}
	}
	return running, latest
}
