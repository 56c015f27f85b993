package breakpoint

import "testing"

// Scenario A: breakpoint catalogue round-trip.
func TestCatalogueRoundTrip(t *testing.T) {
	m := NewManager()
	bp := m.CreateStandard("/a.js", 10, "")

	if got := m.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}

	byFile := m.ListByFile("/a.js")
	if len(byFile) != 1 || byFile[0].Line != 10 {
		t.Fatalf("ListByFile(/a.js) = %+v, want one entry at line 10", byFile)
	}

	if ok := m.Remove(bp.ID); !ok {
		t.Fatal("Remove(bp.ID) = false, want true")
	}
	if ok := m.Remove(bp.ID); ok {
		t.Fatal("second Remove(bp.ID) = true, want false")
	}
	if got := m.Count(); got != 0 {
		t.Fatalf("Count() after removal = %d, want 0", got)
	}
}

// Scenario B: hit-count modulo.
func TestHitCountModulo(t *testing.T) {
	m := NewManager()
	bp := m.CreateStandard("/a.js", 1, "")
	m.SetHitCountCondition(bp.ID, &HitCountCondition{Op: OpModulo, Value: 3})

	want := []bool{true, false, false, true, false, false, true, false}
	for i, w := range want {
		got := m.ShouldPauseOnHitCount(bp.ID)
		if got != w {
			t.Errorf("hitCount=%d: ShouldPauseOnHitCount = %v, want %v", i, got, w)
		}
		m.IncrementHitCount(bp.ID)
	}
}

// Scenario C: toggle preserves identity.
func TestTogglePreservesIdentity(t *testing.T) {
	m := NewManager()
	bp := m.CreateStandard("/f.js", 42, "x>0")
	id, file, line, cond := bp.ID, bp.File, bp.Line, bp.Condition

	for i := 0; i < 5; i++ {
		m.Toggle(id)
	}

	final, ok := m.Get(id)
	if !ok {
		t.Fatal("breakpoint missing after toggling")
	}
	if final.Enabled {
		t.Error("Enabled = true after 5 toggles, want false")
	}
	if final.ID != id || final.File != file || final.Line != line || final.Condition != cond {
		t.Errorf("identity changed: got %+v", final)
	}
}

func TestToggleEvenCountRestoresEnabled(t *testing.T) {
	m := NewManager()
	bp := m.CreateStandard("/f.js", 1, "")
	for i := 0; i < 4; i++ {
		m.Toggle(bp.ID)
	}
	final, _ := m.Get(bp.ID)
	if !final.Enabled {
		t.Error("Enabled = false after 4 toggles, want true (restored)")
	}
}

func TestShouldPauseOperatorTable(t *testing.T) {
	cases := []struct {
		op    Operator
		value int64
		hc    uint64
		want  bool
	}{
		{OpEqual, 3, 3, true},
		{OpEqual, 3, 4, false},
		{OpGreater, 3, 4, true},
		{OpGreater, 3, 3, false},
		{OpGreaterEqual, 3, 3, true},
		{OpGreaterEqual, 3, 2, false},
		{OpLess, 3, 2, true},
		{OpLess, 3, 3, false},
		{OpLessEqual, 3, 3, true},
		{OpLessEqual, 3, 4, false},
		{OpModulo, 3, 6, true},
		{OpModulo, 3, 7, false},
		{OpModulo, 0, 0, false},
	}
	for _, c := range cases {
		got := ShouldPause(c.hc, &HitCountCondition{Op: c.op, Value: c.value})
		if got != c.want {
			t.Errorf("ShouldPause(hc=%d, {%s %d}) = %v, want %v", c.hc, c.op, c.value, got, c.want)
		}
	}
}

func TestShouldPauseFailsOpen(t *testing.T) {
	if !ShouldPause(5, nil) {
		t.Error("ShouldPause with nil condition = false, want true (fail open)")
	}
	if !ShouldPause(5, &HitCountCondition{Op: "unknown", Value: 1}) {
		t.Error("ShouldPause with unknown operator = false, want true (fail open)")
	}
}

func TestShouldPauseOnHitCountMissingBreakpointFailsOpen(t *testing.T) {
	m := NewManager()
	if !m.ShouldPauseOnHitCount("does-not-exist") {
		t.Error("ShouldPauseOnHitCount for missing id = false, want true (fail open)")
	}
}

func TestRemoveMissingIDIsNonError(t *testing.T) {
	m := NewManager()
	if m.Remove("nope") {
		t.Error("Remove(nope) = true, want false")
	}
}

func TestAddBreakpointAllocatesIDWhenEmpty(t *testing.T) {
	m := NewManager()
	bp := m.AddBreakpoint(&Breakpoint{Type: Standard, File: "/x.js", Line: 5, Enabled: true})
	if bp.ID == "" {
		t.Error("expected an allocated ID")
	}
	if !m.Has(bp.ID) {
		t.Error("catalogue does not contain the added breakpoint")
	}
}

func TestClearAll(t *testing.T) {
	m := NewManager()
	m.CreateStandard("/a.js", 1, "")
	m.CreateStandard("/b.js", 2, "")
	m.ClearAll()
	if got := m.Count(); got != 0 {
		t.Errorf("Count() after ClearAll = %d, want 0", got)
	}
}
