package image

import "time"

// multiRecorder fans metrics out to several sinks.
type multiRecorder []MetricsRecorder

// MultiRecorder combines recorders; nil entries are skipped. It returns nil
// when nothing is left, so callers can pass the result to
// WithMetricsRecorder unconditionally.
func MultiRecorder(recorders ...MetricsRecorder) MetricsRecorder {
	var out multiRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (m multiRecorder) ObservePollAttempt(engine string, status JobStatus) {
	for _, r := range m {
		r.ObservePollAttempt(engine, status)
	}
}

func (m multiRecorder) ObserveGeneration(engine, outcome string, duration time.Duration) {
	for _, r := range m {
		r.ObserveGeneration(engine, outcome, duration)
	}
}
