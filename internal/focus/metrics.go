package focus

import "github.com/Dannythecoder88/StudyPal/internal/observability"

// MetricsObserver exports timer progress as Prometheus metrics
type MetricsObserver struct{}

func (MetricsObserver) OnStudyTimeMinutesDelta(minutes int) {
	observability.RecordFocusMinutes(minutes)
}

func (MetricsObserver) OnTotalProgressSeconds(int64) {
	observability.RecordFocusTick()
}

func (MetricsObserver) OnBlockProgressSeconds(int64) {}

func (MetricsObserver) OnModeChange(from, to Mode) {
	observability.RecordFocusTransition(string(from), string(to))
}
