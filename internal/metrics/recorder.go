package metrics

import "time"

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordOrder records a sell order submission outcome.
func (r *Recorder) RecordOrder(isin, outcome string) {
	OrdersTotal.WithLabelValues(isin, outcome).Inc()
}

// RecordOrderSplit records how many orders a submission was split into.
func (r *Recorder) RecordOrderSplit(count int) {
	OrderSplits.Observe(float64(count))
}

// RecordCancellation records a cancel attempt outcome.
func (r *Recorder) RecordCancellation(isin string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "canceled"
	}
	CancellationsTotal.WithLabelValues(isin, outcome).Inc()
}

// RecordSoldVolume adds executed sell volume for an instrument.
func (r *Recorder) RecordSoldVolume(isin string, volume int64) {
	if volume > 0 {
		SoldVolume.WithLabelValues(isin).Add(float64(volume))
	}
}

// RecordPendingOrders sets the active order count for a watcher.
func (r *Recorder) RecordPendingOrders(watcher string, count int) {
	PendingOrders.WithLabelValues(watcher).Set(float64(count))
}

// RecordPhase sets the observed session phase for a watcher.
func (r *Recorder) RecordPhase(watcher string, phase int) {
	WatcherPhase.WithLabelValues(watcher).Set(float64(phase))
}

// RecordWatchersRunning sets the number of running watchers.
func (r *Recorder) RecordWatchersRunning(count int) {
	WatchersRunning.Set(float64(count))
}

// RecordDecision records a sell decision by reason code.
func (r *Recorder) RecordDecision(reason string) {
	Decisions.WithLabelValues(reason).Inc()
}

// RecordError records an error.
func (r *Recorder) RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveTick observes the elapsed time as tick latency.
func (t *Timer) ObserveTick() {
	TickLatency.Observe(t.Elapsed().Seconds())
}
