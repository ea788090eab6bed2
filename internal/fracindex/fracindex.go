// Package fracindex implements a base-36 fractional index algebra for
// ordering notebook cells. Indices are non-empty lowercase base-36 strings
// whose ASCII-lexicographic order coincides with binary collation, so they
// sort correctly in any store without a custom comparator.
package fracindex

import (
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the full index character set, in order.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const (
	base = len(Alphabet)

	// midChar is the canonical first index: the midpoint of the alphabet.
	midChar = "m"
	// halfChar sits at the midpoint of the letter range and is appended when
	// a bound must be extended rather than split.
	halfChar = "h"
)

var (
	// ErrEmptyInterval is returned by Between when no string exists strictly
	// between the bounds. Callers with rebalancing context catch it and
	// reassign indices; everyone else propagates it.
	ErrEmptyInterval = errors.New("fracindex: empty interval")

	// ErrInvalidRange is returned when the lower bound is not strictly below
	// the upper bound. This is a programming error; do not catch it.
	ErrInvalidRange = errors.New("fracindex: invalid range")

	// ErrInvalidCharacter is returned on input outside the base-36 alphabet.
	ErrInvalidCharacter = errors.New("fracindex: invalid character")
)

func charVal(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCharacter, string(c))
	}
}

func valChar(v int) byte {
	return Alphabet[v]
}

// IsValid reports whether s is a well-formed index: non-empty and drawn
// entirely from the base-36 alphabet.
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if _, err := charVal(s[i]); err != nil {
			return false
		}
	}
	return true
}

// ValidateOrder requires strictly increasing consecutive pairs.
func ValidateOrder(indices []string) error {
	for i, s := range indices {
		if !IsValid(s) {
			return fmt.Errorf("%w: index %d (%q)", ErrInvalidCharacter, i, s)
		}
		if i > 0 && indices[i-1] >= s {
			return fmt.Errorf("%w: %q >= %q at position %d", ErrInvalidRange, indices[i-1], s, i)
		}
	}
	return nil
}

func validate(s *string) error {
	if s == nil {
		return nil
	}
	if !IsValid(*s) {
		if *s == "" {
			return fmt.Errorf("%w: empty index", ErrInvalidCharacter)
		}
		return fmt.Errorf("%w: %q", ErrInvalidCharacter, *s)
	}
	return nil
}

// Between returns an index strictly between a and b. A nil bound is open:
// Between(nil, nil) is the canonical midpoint "m", Between(nil, b) sits
// before b and Between(a, nil) sits after a. When both bounds are finite,
// a must be strictly below b or ErrInvalidRange is returned; when the
// bounds are lexically adjacent ErrEmptyInterval is returned.
func Between(a, b *string, src Source) (string, error) {
	if err := validate(a); err != nil {
		return "", err
	}
	if err := validate(b); err != nil {
		return "", err
	}
	core, err := betweenCore(a, b)
	if err != nil {
		return "", err
	}
	return jitter(core, a, b, src), nil
}

func betweenCore(a, b *string) (string, error) {
	switch {
	case a == nil && b == nil:
		return midChar, nil
	case a == nil:
		return before(*b), nil
	case b == nil:
		return after(*a), nil
	}
	lo, hi := *a, *b
	if lo >= hi {
		return "", fmt.Errorf("%w: %q >= %q", ErrInvalidRange, lo, hi)
	}

	// Longest common prefix.
	i := 0
	for i < len(lo) && i < len(hi) && lo[i] == hi[i] {
		i++
	}

	if i == len(lo) {
		// lo is a proper prefix of hi; extend lo below hi's next character.
		v, _ := charVal(hi[i])
		switch {
		case v > 1:
			return lo + string(valChar(v/2)), nil
		case v == 1:
			return lo + "0", nil
		default:
			// hi continues with a zero run. Find the first non-zero past it.
			j := i
			for j < len(hi) && hi[j] == '0' {
				j++
			}
			if j == len(hi) {
				z := j - i
				if z > 1 {
					return lo + strings.Repeat("0", z/2), nil
				}
				return "", fmt.Errorf("%w: between %q and %q", ErrEmptyInterval, lo, hi)
			}
			nv, _ := charVal(hi[j])
			if nv > 0 {
				return lo + strings.Repeat("0", j-i) + string(valChar(nv/2)), nil
			}
			return "", fmt.Errorf("%w: between %q and %q", ErrEmptyInterval, lo, hi)
		}
	}

	av, _ := charVal(lo[i])
	bv, _ := charVal(hi[i])
	if bv-av > 1 {
		return lo[:i] + string(valChar((av+bv)/2)), nil
	}
	// Adjacent characters: descend into lo's suffix.
	if i < len(lo)-1 {
		return lo[:i+1] + after(lo[i+1:]), nil
	}
	return lo[:i+1] + halfChar, nil
}

// Before returns an index strictly below b.
func Before(b string, src Source) (string, error) {
	if err := validate(&b); err != nil {
		return "", err
	}
	return jitter(before(b), nil, &b, src), nil
}

func before(b string) string {
	if b == "" {
		return midChar
	}
	i := 0
	for i < len(b) && b[i] == '0' {
		i++
	}
	if i == len(b) {
		// All zeros: prepend another zero, which sorts below.
		return "0" + b
	}
	v, _ := charVal(b[i])
	if v > 1 {
		return b[:i] + string(valChar(v/2))
	}
	return b[:i] + "0" + halfChar
}

// After returns an index strictly above a.
func After(a string, src Source) (string, error) {
	if err := validate(&a); err != nil {
		return "", err
	}
	return jitter(after(a), &a, nil, src), nil
}

func after(a string) string {
	if a == "" {
		return midChar
	}
	i := len(a) - 1
	for i >= 0 && a[i] == 'z' {
		i--
	}
	if i < 0 {
		return a + halfChar
	}
	v, _ := charVal(a[i])
	// Stop short of 'z' so the new index keeps headroom above it.
	if v < base-2 {
		return a[:i] + string(valChar(v+1))
	}
	return a + halfChar
}

// Generate produces n indices strictly in order between a and b by walking
// prev = Between(prev, b) n times.
func Generate(a, b *string, n int, src Source) ([]string, error) {
	out := make([]string, 0, n)
	prev := a
	for i := 0; i < n; i++ {
		next, err := Between(prev, b, src)
		if err != nil {
			return nil, fmt.Errorf("generate index %d of %d: %w", i, n, err)
		}
		out = append(out, next)
		prev = &out[len(out)-1]
	}
	return out, nil
}
