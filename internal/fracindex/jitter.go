package fracindex

import "math/rand"

// Source supplies randomness to the algebra. Injecting it keeps index
// generation reproducible in tests; a nil Source disables jitter entirely.
type Source interface {
	Random() float64
	RandomInt(max int) int
}

const (
	// jitterProbability is the chance a freshly computed index gets one extra
	// random character appended. The extension diversifies indices when two
	// writers insert into the same gap concurrently.
	jitterProbability = 0.3

	// maxJitterLength caps the length of indices eligible for extension.
	maxJitterLength = 10
)

type seededSource struct {
	rng *rand.Rand
}

// NewSeededSource returns a deterministic Source. Two sources with equal
// seeds produce identical index sequences.
func NewSeededSource(seed int64) Source {
	return &seededSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *seededSource) Random() float64 {
	return s.rng.Float64()
}

func (s *seededSource) RandomInt(max int) int {
	return s.rng.Intn(max)
}

// jitter conditionally appends one random alphabet character to k, keeping
// the result only when it still lies strictly inside (a, b).
func jitter(k string, a, b *string, src Source) string {
	if src == nil || len(k) >= maxJitterLength || src.Random() >= jitterProbability {
		return k
	}
	extended := k + string(Alphabet[src.RandomInt(base)])
	if a != nil && extended <= *a {
		return k
	}
	if b != nil && extended >= *b {
		return k
	}
	return extended
}

type systemSource struct{}

// SystemSource returns a Source backed by the shared math/rand generator,
// safe for concurrent use.
func SystemSource() Source { return systemSource{} }

func (systemSource) Random() float64       { return rand.Float64() }
func (systemSource) RandomInt(max int) int { return rand.Intn(max) }
