package addr

import "testing"

func TestNormalizeLowercases(t *testing.T) {
	got, err := Normalize("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0xabcdef0123456789abcdef0123456789abcdef01"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	got, err := Normalize("  0x000000000000000000000000000000000000000a  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0x000000000000000000000000000000000000000a" {
		t.Fatalf("unexpected normalization: %s", got)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"0x0",
		"not-an-address",
		"000000000000000000000000000000000000000a",       // missing 0x
		"0x0000000000000000000000000000000000000000a",    // 41 hex chars
		"0x0000000000000000000000000000000000000g0a",     // invalid hex char
	}
	for _, c := range cases {
		if _, err := Normalize(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid("0x000000000000000000000000000000000000000a") {
		t.Fatalf("expected valid address to pass Valid")
	}
	if Valid("bogus") {
		t.Fatalf("expected invalid address to fail Valid")
	}
}
