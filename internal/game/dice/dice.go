// Package dice implements the die rolls that drive TRLG movement and the
// lotto minigame.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

const faces = 6

// Roller produces six-sided die faces from a seeded source. The same seed
// yields the same face sequence, which tests rely on.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a roller over the given seed.
func New(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// NewRandom creates a roller seeded from crypto/rand.
func NewRandom() (*Roller, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return New(seed), nil
}

// Face returns one die face in 1..6.
func (r *Roller) Face() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(faces) + 1
}

// Pair returns two die faces, the shape of a TRLG movement roll.
func (r *Roller) Pair() (int, int) {
	return r.Face(), r.Face()
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
