package decimal

import "testing"

func TestAddExact(t *testing.T) {
	a := MustFromString("0.1")
	b := MustFromString("0.2")
	got := a.Add(b)
	want := MustFromString("0.3")
	if got.Cmp(want) != 0 {
		t.Fatalf("0.1+0.2 = %s, want %s", got, want)
	}
}

func TestFromStringRoundTrip(t *testing.T) {
	cases := []string{"0", "-0", "100", "-100.5", "0.00000001", "-0.00000001", "12345.6789"}
	for _, c := range cases {
		d, err := FromString(c)
		if err != nil {
			t.Fatalf("FromString(%q): %v", c, err)
		}
		back, err := FromString(d.String())
		if err != nil {
			t.Fatalf("FromString(%q) round-trip: %v", d.String(), err)
		}
		if back.Cmp(d) != 0 {
			t.Fatalf("round-trip mismatch for %q: %s != %s", c, back, d)
		}
	}
}

func TestMulRoundHalfUp(t *testing.T) {
	a := MustFromString("0.00000005")
	b := MustFromString("1")
	got := a.Mul(b)
	if got.Cmp(a) != 0 {
		t.Fatalf("0.00000005*1 = %s, want %s", got, a)
	}

	// (10 - 100) * 2 * -1 style unrealizedFor check covered in pnl package; here just
	// verify a multiplication that requires rounding at the 8th digit.
	// 0.33333333 * 0.5 = 0.166666665 exactly, one digit past Scale.
	x := MustFromString("0.33333333")
	y := MustFromString("0.5")
	got = x.Mul(y)
	want := MustFromString("0.16666667") // half-up at the 8th fractional digit
	if got.Cmp(want) != 0 {
		t.Fatalf("rounding mismatch: got %s want %s", got, want)
	}
}

func TestSignAndAbs(t *testing.T) {
	neg := MustFromString("-5")
	if neg.Sign() != -1 {
		t.Fatalf("expected negative sign")
	}
	if neg.Abs().Sign() != 1 {
		t.Fatalf("expected positive sign after Abs")
	}
	if !Zero().IsZero() {
		t.Fatalf("Zero() should be zero")
	}
}

func TestInvalidStrings(t *testing.T) {
	for _, s := range []string{"", "abc", "1.2.3", "+", "-"} {
		if _, err := FromString(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := MustFromString("-42.5")
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var out Decimal
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if out.Cmp(d) != 0 {
		t.Fatalf("JSON round trip mismatch: %s != %s", out, d)
	}
}

func TestValueScanRoundTrip(t *testing.T) {
	d := MustFromString("-42.5")
	v, err := d.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out Decimal
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if out.Cmp(d) != 0 {
		t.Fatalf("Scan(string) mismatch: %s != %s", out, d)
	}

	var fromBytes Decimal
	if err := fromBytes.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("Scan([]byte): %v", err)
	}
	if fromBytes.Cmp(d) != 0 {
		t.Fatalf("Scan([]byte) mismatch: %s != %s", fromBytes, d)
	}

	var fromNil Decimal
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsZero() {
		t.Fatalf("Scan(nil) expected zero value, got %s", fromNil)
	}
}
