package focus

// Observer receives progress from a running timer. Hooks are called after
// the timer lock is released.
type Observer interface {
	OnStudyTimeMinutesDelta(minutes int)
	OnTotalProgressSeconds(seconds int64)
	OnBlockProgressSeconds(seconds int64)
}

// ModeObserver is implemented by observers that want mode transitions
type ModeObserver interface {
	OnModeChange(from, to Mode)
}

// FocusScoreObserver is implemented by observers that track the focus score
type FocusScoreObserver interface {
	OnFocusScore(score int)
}

// ObserverFuncs adapts plain functions to the observer interfaces.
// Nil fields are skipped.
type ObserverFuncs struct {
	MinutesDelta  func(minutes int)
	TotalProgress func(seconds int64)
	BlockProgress func(seconds int64)
	ModeChange    func(from, to Mode)
	FocusScore    func(score int)
}

func (f ObserverFuncs) OnStudyTimeMinutesDelta(minutes int) {
	if f.MinutesDelta != nil {
		f.MinutesDelta(minutes)
	}
}

func (f ObserverFuncs) OnTotalProgressSeconds(seconds int64) {
	if f.TotalProgress != nil {
		f.TotalProgress(seconds)
	}
}

func (f ObserverFuncs) OnBlockProgressSeconds(seconds int64) {
	if f.BlockProgress != nil {
		f.BlockProgress(seconds)
	}
}

func (f ObserverFuncs) OnModeChange(from, to Mode) {
	if f.ModeChange != nil {
		f.ModeChange(from, to)
	}
}

func (f ObserverFuncs) OnFocusScore(score int) {
	if f.FocusScore != nil {
		f.FocusScore(score)
	}
}

// notice is one pending observer call collected under the lock
type notice func(o Observer)

func minutesNotice(delta int) notice {
	return func(o Observer) { o.OnStudyTimeMinutesDelta(delta) }
}

func totalNotice(total int64) notice {
	return func(o Observer) { o.OnTotalProgressSeconds(total) }
}

func blockNotice(block int64) notice {
	return func(o Observer) { o.OnBlockProgressSeconds(block) }
}

func modeNotice(from, to Mode) notice {
	return func(o Observer) {
		if mo, ok := o.(ModeObserver); ok {
			mo.OnModeChange(from, to)
		}
	}
}

func scoreNotice(score int) notice {
	return func(o Observer) {
		if so, ok := o.(FocusScoreObserver); ok {
			so.OnFocusScore(score)
		}
	}
}
