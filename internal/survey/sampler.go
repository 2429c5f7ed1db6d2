package survey

import "math/rand"

// Sample picks k documents from the pool uniformly at random without
// replacement. The returned order is the queue order for the run and is
// never re-shuffled afterwards. k is clamped to the pool size.
func Sample(r *rand.Rand, pool []InstructionDoc, k int) ([]InstructionDoc, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	if k > len(pool) {
		k = len(pool)
	}
	if k < 1 {
		k = 1
	}
	out := make([]InstructionDoc, 0, k)
	for _, i := range r.Perm(len(pool))[:k] {
		out = append(out, pool[i])
	}
	return out, nil
}
