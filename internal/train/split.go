// Package train fits the per-pixel classifier on an exported chip dataset.
package train

import (
	"math"
	"math/rand"
)

// Split partitions n chip indices into training and validation sets. The
// shuffle is driven entirely by the seed, so the same dataset, ratio and
// seed always produce the same partition.
func Split(n int, validationRatio float64, seed int64) (train, validation []int) {
	if n <= 0 {
		return nil, nil
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	valCount := int(math.Round(validationRatio * float64(n)))
	if valCount >= n {
		valCount = n - 1
	}
	if valCount < 1 && n > 1 && validationRatio > 0 {
		valCount = 1
	}

	cut := n - valCount
	return perm[:cut], perm[cut:]
}
