package fracindex

import (
	"errors"
	"strings"
	"testing"
)

func str(s string) *string { return &s }

func mustBetween(t *testing.T, a, b *string) string {
	t.Helper()
	k, err := Between(a, b, nil)
	if err != nil {
		t.Fatalf("Between(%v, %v) failed: %v", deref(a), deref(b), err)
	}
	return k
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestBetweenOpenBounds(t *testing.T) {
	if got := mustBetween(t, nil, nil); got != "m" {
		t.Errorf("Between(nil, nil) = %q, want %q", got, "m")
	}
}

func TestBetweenCases(t *testing.T) {
	cases := []struct {
		a, b string
		want string
	}{
		{"a", "c", "b"},
		{"a", "z", "m"},
		{"a", "b", "ah"},
		{"m", "m1", "m0"},
		{"m", "m2", "m1"},
		{"m5", "n", "m6"},
		{"a", "a1", "a0"},
		{"a", "a00000", "a00"},
		{"a", "a001", "a000"},
		{"ab", "ab00004", "ab00002"},
	}
	for _, tc := range cases {
		got := mustBetween(t, str(tc.a), str(tc.b))
		if got != tc.want {
			t.Errorf("Between(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
		if !(tc.a < got && got < tc.b) {
			t.Errorf("Between(%q, %q) = %q is not strictly inside the interval", tc.a, tc.b, got)
		}
	}
}

func TestBetweenResultStrictlyInside(t *testing.T) {
	pairs := [][2]string{
		{"0", "1"}, {"09", "0a"}, {"m", "mz"}, {"abc", "abd"},
		{"m", "z"}, {"000", "001"}, {"y", "z"}, {"a", "a0000002"},
	}
	for _, p := range pairs {
		k := mustBetween(t, str(p[0]), str(p[1]))
		if !(p[0] < k && k < p[1]) {
			t.Errorf("Between(%q, %q) = %q out of range", p[0], p[1], k)
		}
		if !IsValid(k) {
			t.Errorf("Between(%q, %q) = %q is not a valid index", p[0], p[1], k)
		}
	}
}

func TestBetweenEmptyInterval(t *testing.T) {
	cases := [][2]string{
		{"a", "a0"},
		{"m", "m0"},
	}
	for _, p := range cases {
		_, err := Between(str(p[0]), str(p[1]), nil)
		if !errors.Is(err, ErrEmptyInterval) {
			t.Errorf("Between(%q, %q) error = %v, want ErrEmptyInterval", p[0], p[1], err)
		}
	}
}

func TestBetweenInvalidRange(t *testing.T) {
	for _, p := range [][2]string{{"b", "a"}, {"m", "m"}, {"z", "a"}} {
		_, err := Between(str(p[0]), str(p[1]), nil)
		if !errors.Is(err, ErrInvalidRange) {
			t.Errorf("Between(%q, %q) error = %v, want ErrInvalidRange", p[0], p[1], err)
		}
	}
}

func TestBetweenInvalidCharacter(t *testing.T) {
	for _, p := range [][2]*string{{str("A"), nil}, {nil, str("m!")}, {str(""), str("m")}} {
		_, err := Between(p[0], p[1], nil)
		if !errors.Is(err, ErrInvalidCharacter) {
			t.Errorf("Between(%v, %v) error = %v, want ErrInvalidCharacter", deref(p[0]), deref(p[1]), err)
		}
	}
}

func TestBeforeAndAfter(t *testing.T) {
	for _, b := range []string{"m", "1", "0001", "z", "a5"} {
		got, err := Before(b, nil)
		if err != nil {
			t.Fatalf("Before(%q) failed: %v", b, err)
		}
		if !(got < b) || !IsValid(got) {
			t.Errorf("Before(%q) = %q, want a valid index below", b, got)
		}
	}
	for _, a := range []string{"m", "z", "zz", "my", "0", "yz"} {
		got, err := After(a, nil)
		if err != nil {
			t.Fatalf("After(%q) failed: %v", a, err)
		}
		if !(got > a) || !IsValid(got) {
			t.Errorf("After(%q) = %q, want a valid index above", a, got)
		}
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"0", "00", "000", "m", "a9z"}
	for _, s := range valid {
		if !IsValid(s) {
			t.Errorf("IsValid(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "M", "a-b", "a b", "ä"}
	for _, s := range invalid {
		if IsValid(s) {
			t.Errorf("IsValid(%q) = true, want false", s)
		}
	}
}

func TestValidateOrder(t *testing.T) {
	if err := ValidateOrder([]string{"a", "b", "ba", "c"}); err != nil {
		t.Errorf("ValidateOrder on increasing sequence failed: %v", err)
	}
	if err := ValidateOrder([]string{"a", "a"}); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("ValidateOrder on equal pair = %v, want ErrInvalidRange", err)
	}
	if err := ValidateOrder([]string{"b", "a"}); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("ValidateOrder on decreasing pair = %v, want ErrInvalidRange", err)
	}
	if err := ValidateOrder([]string{"a", "B"}); !errors.Is(err, ErrInvalidCharacter) {
		t.Errorf("ValidateOrder with bad character = %v, want ErrInvalidCharacter", err)
	}
}

func TestBoundedGrowth(t *testing.T) {
	// 100 sequential tail inserts must not blow up index length.
	prev := "a"
	for i := 0; i < 100; i++ {
		next, err := Between(&prev, nil, nil)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if next <= prev {
			t.Fatalf("iteration %d: %q not above %q", i, next, prev)
		}
		if len(next) >= 20 {
			t.Fatalf("iteration %d: index %q grew to length %d", i, next, len(next))
		}
		prev = next
	}
}

func TestGenerate(t *testing.T) {
	indices, err := Generate(nil, nil, 50, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(indices) != 50 {
		t.Fatalf("Generate returned %d indices, want 50", len(indices))
	}
	if err := ValidateOrder(indices); err != nil {
		t.Errorf("Generate produced unordered indices: %v", err)
	}
	if indices[0] != "m" {
		t.Errorf("first generated index = %q, want %q", indices[0], "m")
	}
}

func TestGenerateBounded(t *testing.T) {
	a, b := "a", "b"
	indices, err := Generate(&a, &b, 20, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for i, s := range indices {
		if !(a < s && s < b) {
			t.Errorf("index %d = %q escapes (%q, %q)", i, s, a, b)
		}
	}
	if err := ValidateOrder(indices); err != nil {
		t.Errorf("bounded Generate unordered: %v", err)
	}
}

func TestJitterDeterminism(t *testing.T) {
	a, b := "a", "z"
	first, err := Between(&a, &b, NewSeededSource(42))
	if err != nil {
		t.Fatalf("Between failed: %v", err)
	}
	second, err := Between(&a, &b, NewSeededSource(42))
	if err != nil {
		t.Fatalf("Between failed: %v", err)
	}
	if first != second {
		t.Errorf("seeded Between not deterministic: %q vs %q", first, second)
	}
	if !(a < first && first < b) {
		t.Errorf("jittered index %q escapes (%q, %q)", first, a, b)
	}
}

func TestJitterStaysInsideInterval(t *testing.T) {
	src := NewSeededSource(7)
	a, b := "m", "m1"
	for i := 0; i < 200; i++ {
		k, err := Between(&a, &b, src)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if !(a < k && k < b) {
			t.Fatalf("iteration %d: %q escapes (%q, %q)", i, k, a, b)
		}
	}
}

func TestLeadingZerosAreDistinctIndices(t *testing.T) {
	// No normalization: "0", "00", "000" are valid and strictly ordered.
	if err := ValidateOrder([]string{"0", "00", "000"}); err != nil {
		t.Errorf("leading-zero indices should be ordered: %v", err)
	}
}

func TestBetweenRandomizedSweep(t *testing.T) {
	// Repeated midpoint splits from both ends keep producing valid interior
	// indices until the interval genuinely closes.
	lo, hi := "a", "b"
	for i := 0; i < 64; i++ {
		k, err := Between(&lo, &hi, nil)
		if errors.Is(err, ErrEmptyInterval) {
			return
		}
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if !(lo < k && k < hi) {
			t.Fatalf("iteration %d: %q out of (%q, %q)", i, k, lo, hi)
		}
		if i%2 == 0 {
			lo = k
		} else {
			hi = k
		}
	}
	if !strings.HasPrefix(lo, "a") {
		t.Errorf("narrowed lower bound %q lost its prefix", lo)
	}
}
