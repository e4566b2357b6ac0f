package session

// Observer receives one callback per semantic event, after the event has been
// applied. Callbacks run on the dispatch goroutine of the connection that
// delivered the event and must not block for long.
type Observer interface {
	OnRunStart(Snapshot)
	OnSteps(Snapshot)
	OnStepUpdate(snap Snapshot, stepID string)
	OnSection(snap Snapshot, sectionID string)
	OnForecast(Snapshot)
	OnValuation(Snapshot)
	OnQualityCheck(Snapshot)
	OnComplete(Snapshot)
	OnError(snap Snapshot, err error)

	OnRegenStart(Snapshot)
	OnRegenStep(snap Snapshot, step string)
	OnRegenSection(snap Snapshot, sectionID string)
	OnRegenForecast(Snapshot)
	OnRegenValuation(Snapshot)
	OnRegenComplete(Snapshot)
	OnRegenError(snap Snapshot, err error)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnRunStart(Snapshot)             {}
func (NopObserver) OnSteps(Snapshot)                {}
func (NopObserver) OnStepUpdate(Snapshot, string)   {}
func (NopObserver) OnSection(Snapshot, string)      {}
func (NopObserver) OnForecast(Snapshot)             {}
func (NopObserver) OnValuation(Snapshot)            {}
func (NopObserver) OnQualityCheck(Snapshot)         {}
func (NopObserver) OnComplete(Snapshot)             {}
func (NopObserver) OnError(Snapshot, error)         {}
func (NopObserver) OnRegenStart(Snapshot)           {}
func (NopObserver) OnRegenStep(Snapshot, string)    {}
func (NopObserver) OnRegenSection(Snapshot, string) {}
func (NopObserver) OnRegenForecast(Snapshot)        {}
func (NopObserver) OnRegenValuation(Snapshot)       {}
func (NopObserver) OnRegenComplete(Snapshot)        {}
func (NopObserver) OnRegenError(Snapshot, error)    {}

// Observers fans callbacks out in order.
type Observers []Observer

func (o Observers) OnRunStart(s Snapshot) {
	for _, obs := range o {
		obs.OnRunStart(s)
	}
}

func (o Observers) OnSteps(s Snapshot) {
	for _, obs := range o {
		obs.OnSteps(s)
	}
}

func (o Observers) OnStepUpdate(s Snapshot, stepID string) {
	for _, obs := range o {
		obs.OnStepUpdate(s, stepID)
	}
}

func (o Observers) OnSection(s Snapshot, sectionID string) {
	for _, obs := range o {
		obs.OnSection(s, sectionID)
	}
}

func (o Observers) OnForecast(s Snapshot) {
	for _, obs := range o {
		obs.OnForecast(s)
	}
}

func (o Observers) OnValuation(s Snapshot) {
	for _, obs := range o {
		obs.OnValuation(s)
	}
}

func (o Observers) OnQualityCheck(s Snapshot) {
	for _, obs := range o {
		obs.OnQualityCheck(s)
	}
}

func (o Observers) OnComplete(s Snapshot) {
	for _, obs := range o {
		obs.OnComplete(s)
	}
}

func (o Observers) OnError(s Snapshot, err error) {
	for _, obs := range o {
		obs.OnError(s, err)
	}
}

func (o Observers) OnRegenStart(s Snapshot) {
	for _, obs := range o {
		obs.OnRegenStart(s)
	}
}

func (o Observers) OnRegenStep(s Snapshot, step string) {
	for _, obs := range o {
		obs.OnRegenStep(s, step)
	}
}

func (o Observers) OnRegenSection(s Snapshot, sectionID string) {
	for _, obs := range o {
		obs.OnRegenSection(s, sectionID)
	}
}

func (o Observers) OnRegenForecast(s Snapshot) {
	for _, obs := range o {
		obs.OnRegenForecast(s)
	}
}

func (o Observers) OnRegenValuation(s Snapshot) {
	for _, obs := range o {
		obs.OnRegenValuation(s)
	}
}

func (o Observers) OnRegenComplete(s Snapshot) {
	for _, obs := range o {
		obs.OnRegenComplete(s)
	}
}

func (o Observers) OnRegenError(s Snapshot, err error) {
	for _, obs := range o {
		obs.OnRegenError(s, err)
	}
}
