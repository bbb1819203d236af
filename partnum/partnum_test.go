package partnum

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"A 309 601 02 57", "A3096010257"},
		{"a309-601-02-57", "A3096010257"},
		{"A3096010257", "A3096010257"},
		{"  b66 95 8309 ", "B66958309"},
		{"!@#$", ""},
		{"", ""},
		{"a309.601/02.57 ersatz", "A3096010257ERSATZ"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	// WHAT: normalize(normalize(x)) == normalize(x) for arbitrary input.
	// WHY: every package keys records by the normalized form.
	inputs := []string{"A 309 601 02 57", "a309*", "", "Ä-309", "0.00 €"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestIsAllowed(t *testing.T) {
	prefixes := []string{"A309", "a310"}
	if !IsAllowed("A3096010257", prefixes) {
		t.Error("A3096010257 should match A309")
	}
	if !IsAllowed("A3101234567", prefixes) {
		t.Error("A3101234567 should match a310 (case-normalized)")
	}
	if IsAllowed("B66958309", prefixes) {
		t.Error("B66958309 should not match")
	}
	if IsAllowed("A3096010257", nil) {
		t.Error("no prefixes means nothing is allowed")
	}
	if IsAllowed("A3096010257", []string{""}) {
		t.Error("empty prefix must not match everything")
	}
}

func TestIsExcluded(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"A0000000000", true},  // exactly ten zeros
		{"A00000000000", true}, // eleven zeros
		{"A000000000", false},  // only nine zeros
		{"A0000000001", false},
		{"B0000000000", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsExcluded(c.id); got != c.want {
			t.Errorf("IsExcluded(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
