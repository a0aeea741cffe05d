package logic

import (
	"errors"
	"testing"
	"time"
)

func TestDosingFireSetsDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := NewDosing(1000)

	if !d.Fire(now, []float64{30, 20}) {
		t.Fatal("expected deadline to be set")
	}
	if want := now.Add(50 * time.Second); !d.Until().Equal(want) {
		t.Errorf("until = %v, want %v", d.Until(), want)
	}

	active, changed := d.Update(now)
	if !active || !changed {
		t.Errorf("at fire: active=%v changed=%v", active, changed)
	}
	active, changed = d.Update(now.Add(49 * time.Second))
	if !active || changed {
		t.Errorf("before deadline: active=%v changed=%v", active, changed)
	}
	active, changed = d.Update(now.Add(50 * time.Second))
	if active || !changed {
		t.Errorf("at deadline: active=%v changed=%v", active, changed)
	}
	if !d.Until().IsZero() {
		t.Error("expired deadline should be cleared")
	}
}

func TestDosingOverwritesNotExtends(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := NewDosing(1000)

	d.Fire(t0, []float64{120})
	t1 := t0.Add(time.Minute)
	d.Fire(t1, []float64{10})

	if want := t1.Add(10 * time.Second); !d.Until().Equal(want) {
		t.Errorf("until = %v, want %v", d.Until(), want)
	}
}

func TestDosingIgnoresNonPositiveSum(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := NewDosing(1000)

	for _, vals := range [][]float64{nil, {0}, {-5}, {0, -10}} {
		if d.Fire(now, vals) {
			t.Errorf("Fire(%v) should be ignored", vals)
		}
	}
	if !d.Until().IsZero() {
		t.Error("deadline should be unset")
	}
}

func TestDosingSkipsNonPositiveValues(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := NewDosing(1000)

	if !d.Fire(now, []float64{30, -20, 0}) {
		t.Fatal("expected deadline to be set")
	}
	if want := now.Add(30 * time.Second); !d.Until().Equal(want) {
		t.Errorf("until = %v, want %v", d.Until(), want)
	}
}

func TestDosingManualToggleOR(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := NewDosing(1000)

	d.ToggleManual()
	if active, changed := d.Update(now); !active || !changed {
		t.Errorf("manual on: active=%v changed=%v", active, changed)
	}

	d.Fire(now, []float64{5})
	d.ToggleManual()
	if active, _ := d.Update(now.Add(time.Second)); !active {
		t.Error("schedule should keep the pump running after manual off")
	}
	if active, changed := d.Update(now.Add(6 * time.Second)); active || !changed {
		t.Errorf("after deadline: active=%v changed=%v", active, changed)
	}
}

func TestDosingStop(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := NewDosing(1000)
	d.Fire(now, []float64{600})
	d.ToggleManual()
	d.Update(now)

	d.Stop()
	active, changed := d.Update(now.Add(time.Second))
	if active || !changed {
		t.Errorf("after Stop: active=%v changed=%v", active, changed)
	}
	if d.Manual() {
		t.Error("manual toggle should be cleared")
	}
}

func TestNewMinuteDeduplicates(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := NewDosing(1000)

	if !d.NewMinute(base) {
		t.Error("first sighting should be new")
	}
	if d.NewMinute(base.Add(30 * time.Second)) {
		t.Error("same minute should not be new")
	}
	if !d.NewMinute(base.Add(time.Minute)) {
		t.Error("next minute should be new")
	}
}

func TestSetFreq(t *testing.T) {
	d := NewDosing(1000)
	if err := d.SetFreq(-1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("got %v", err)
	}
	if d.Freq != 1000 {
		t.Errorf("freq changed to %v", d.Freq)
	}
	if err := d.SetFreq(0); err != nil {
		t.Errorf("SetFreq(0): %v", err)
	}
}
