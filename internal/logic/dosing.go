package logic

import (
	"fmt"
	"time"
)

// Dosing is the per-vessel nutrient pump timer. A calendar firing sets a deadline of
// now + sum(values) seconds, replacing any earlier deadline. The pump runs while the
// deadline lies in the future or the operator's manual toggle is on.
type Dosing struct {
	Freq float64

	until      time.Time
	manual     bool
	active     bool
	lastMinute string
}

// NewDosing returns an idle timer driving the pump at freq Hz.
func NewDosing(freq float64) *Dosing {
	return &Dosing{Freq: freq}
}

// Until returns the current deadline; zero when none is set.
func (d *Dosing) Until() time.Time { return d.until }

// Manual reports the manual toggle.
func (d *Dosing) Manual() bool { return d.manual }

// Active reports the state computed by the last Update.
func (d *Dosing) Active() bool { return d.active }

// NewMinute reports true the first time it sees a given wall-clock minute.
func (d *Dosing) NewMinute(now time.Time) bool {
	key := now.Format("2006-01-02 15:04")
	if key == d.lastMinute {
		return false
	}
	d.lastMinute = key
	return true
}

// Fire applies the values of dosing events due now. Only positive values count and a
// zero sum is ignored. Returns whether a deadline was set.
func (d *Dosing) Fire(now time.Time, values []float64) bool {
	sum := 0.0
	for _, v := range values {
		if v > 0 {
			sum += v
		}
	}
	if sum <= 0 || !finite(sum) {
		return false
	}
	d.until = now.Add(time.Duration(sum * float64(time.Second)))
	return true
}

// Update recomputes the pump state at now and reports whether it changed.
// An expired deadline is cleared.
func (d *Dosing) Update(now time.Time) (active, changed bool) {
	scheduled := !d.until.IsZero() && now.Before(d.until)
	if !scheduled {
		d.until = time.Time{}
	}
	active = scheduled || d.manual
	changed = active != d.active
	d.active = active
	return active, changed
}

// ToggleManual flips the manual toggle. The caller runs Update to apply it.
func (d *Dosing) ToggleManual() bool {
	d.manual = !d.manual
	return d.manual
}

// Stop clears the deadline and the manual toggle.
func (d *Dosing) Stop() {
	d.until = time.Time{}
	d.manual = false
}

// SetFreq is the operator edit of the pump frequency.
func (d *Dosing) SetFreq(freq float64) error {
	if !finite(freq) || freq < 0 {
		return fmt.Errorf("%w: pump frequency %v must be >= 0", ErrInvalidInput, freq)
	}
	d.Freq = freq
	return nil
}
