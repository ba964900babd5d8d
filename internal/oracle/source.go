package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"
)

// Source supplies the draws for a reading. It is injected so generation is
// deterministic and replayable in tests.
type Source interface {
	// Intn returns a uniform value in [0, n). n must be > 0.
	Intn(n int) int
}

type randomSource struct {
	rng *rand.Rand
}

// NewRandomSource returns a time-seeded source for demo readings.
func NewRandomSource() Source {
	return &randomSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *randomSource) Intn(n int) int {
	return s.rng.Intn(n)
}

// SeededSource derives every draw from a sha256 chain over a seed string, so
// the same seed always yields the same sequence. Paid readings are seeded
// from the order id and email, making a regenerated reading identical to the
// original.
type SeededSource struct {
	seed string
	iter int
}

func NewSeededSource(seed string) *SeededSource {
	return &SeededSource{seed: seed}
}

// OrderSeed builds the canonical seed for a paid order's reading.
func OrderSeed(orderID, email string) string {
	sum := sha256.Sum256([]byte(orderID + "_" + email))
	return hex.EncodeToString(sum[:])
}

func (s *SeededSource) Intn(n int) int {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d", s.seed, s.iter)))
	s.iter++
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(n))
}
