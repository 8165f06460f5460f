package uuid

import "testing"

func TestCompareOrdersByRawBytes(t *testing.T) {
	a := UUID{0x00, 0x01}
	b := UUID{0x00, 0x02}
	if Compare(a, b) >= 0 {
		t.Fatal("expected a < b")
	}
	if Compare(b, a) <= 0 {
		t.Fatal("expected b > a")
	}
	if Compare(a, a) != 0 {
		t.Fatal("expected a == a")
	}
	if !Less(a, b) {
		t.Fatal("Less(a, b) should be true")
	}
}

func TestNilIsZeroValue(t *testing.T) {
	var z UUID
	if z != Nil {
		t.Fatal("zero value UUID should equal Nil")
	}
}

func TestCallerIDComparable(t *testing.T) {
	u1, u2 := New(), New()
	c1 := CallerID{UserID: u1, ConnectionID: u2}
	c2 := CallerID{UserID: u1, ConnectionID: u2}
	c3 := CallerID{UserID: u2, ConnectionID: u1}

	m := map[CallerID]int{}
	m[c1] = 1
	if m[c2] != 1 {
		t.Fatal("equal CallerID values should hash/compare equal as map keys")
	}
	if _, ok := m[c3]; ok {
		t.Fatal("distinct CallerID should not collide")
	}

	var zero CallerID
	if !zero.IsZero() {
		t.Fatal("zero-value CallerID should report IsZero")
	}
	if c1.IsZero() {
		t.Fatal("non-nil CallerID should not report IsZero")
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := New()
	parsed, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != orig {
		t.Fatalf("parsed = %v, want %v", parsed, orig)
	}
}
