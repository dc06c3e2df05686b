package testutil

import "testing"

// Given, When and Then wrap t.Run with a narrative prefix for multi-stage
// scenarios. A failed stage aborts the test so later stages never run on a
// broken premise.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	stage(t, "Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	stage(t, "When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	stage(t, "Then "+desc, fn)
}

func stage(t *testing.T, name string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(name, fn) {
		t.FailNow()
	}
}
