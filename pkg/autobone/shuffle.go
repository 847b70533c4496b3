package autobone

import "math/rand"

// frameOrder returns the order frames are paired in: identity, or a uniform
// permutation of [0, n) drawn from r.
func frameOrder(r *rand.Rand, n int, randomize bool) []int {
	if randomize && r != nil {
		return r.Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
