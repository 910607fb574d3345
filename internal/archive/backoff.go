package archive

import "time"

// scheduleMs is the fixed backoff schedule from the retry policy: the
// k-th retry waits scheduleMs[min(k-1, len-1)] milliseconds.
var scheduleMs = []int64{100, 500, 2000, 5000, 10000, 20000}

// fixedSchedule implements backoff.BackOff over the archive client's
// documented fixed schedule instead of the library's default exponential
// curve, so retry timing matches the spec exactly (property 7: the k-th
// backoff for k <= 6 equals schedule[min(k-1,5)], 20000 afterwards).
type fixedSchedule struct {
	attempt int
}

func newFixedSchedule() *fixedSchedule {
	return &fixedSchedule{}
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	idx := f.attempt
	if idx >= len(scheduleMs) {
		idx = len(scheduleMs) - 1
	}
	f.attempt++
	return time.Duration(scheduleMs[idx]) * time.Millisecond
}

func (f *fixedSchedule) Reset() {
	f.attempt = 0
}
