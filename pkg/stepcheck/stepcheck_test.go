package stepcheck

import "testing"

type step int

const (
	stepInit step = iota
	stepShareSent
	stepConfirmed
)

func doStep(c *StepChecker[step], expected, next step, fail bool) (err error) {
	marker, err := c.CheckStep(expected, next)
	if err != nil {
		return err
	}
	defer marker.Finish(&err)

	if fail {
		return errTestFailure
	}
	return nil
}

var errTestFailure = errStr("simulated failure")

type errStr string

func (e errStr) Error() string { return string(e) }

func TestCheckStepAdvancesOnSuccess(t *testing.T) {
	c := New(stepInit)
	if err := doStep(c, stepInit, stepShareSent, false); err != nil {
		t.Fatalf("doStep: %v", err)
	}
	cur, err := c.CurrentStep()
	if err != nil {
		t.Fatalf("CurrentStep: %v", err)
	}
	if cur != stepShareSent {
		t.Fatalf("cur = %v, want %v", cur, stepShareSent)
	}
}

func TestCheckStepWastesOnWrongStep(t *testing.T) {
	c := New(stepInit)
	if err := doStep(c, stepShareSent, stepConfirmed, false); err != ErrInvalidStep {
		t.Fatalf("err = %v, want ErrInvalidStep", err)
	}
	if !c.Wasted() {
		t.Fatal("checker should be wasted after an out-of-order step")
	}
	if _, err := c.CurrentStep(); err != ErrWasted {
		t.Fatalf("CurrentStep after waste = %v, want ErrWasted", err)
	}
}

func TestMarkerFinishWastesOnCallerError(t *testing.T) {
	c := New(stepInit)
	if err := doStep(c, stepInit, stepShareSent, true); err != errTestFailure {
		t.Fatalf("err = %v, want errTestFailure", err)
	}
	if !c.Wasted() {
		t.Fatal("checker should be wasted after the step's scope returned an error")
	}

	// Even calling with the now-current step must fail: the checker is
	// permanently unusable.
	if err := doStep(c, stepShareSent, stepConfirmed, false); err != ErrWasted {
		t.Fatalf("err = %v, want ErrWasted", err)
	}
}

func TestSequentialStepsSucceed(t *testing.T) {
	c := New(stepInit)
	if err := doStep(c, stepInit, stepShareSent, false); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if err := doStep(c, stepShareSent, stepConfirmed, false); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	cur, _ := c.CurrentStep()
	if cur != stepConfirmed {
		t.Fatalf("cur = %v, want %v", cur, stepConfirmed)
	}
}
