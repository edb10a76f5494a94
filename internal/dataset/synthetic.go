package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Separable draws n two-dimensional points from two Gaussian clusters centred
// on (-1.5, -1.5) and (1.5, 1.5). Points on the wrong side of the line x+y=0,
// or within the margin of it, are redrawn so the set is linearly separable.
func Separable(n int, seed int64) (*mat.Dense, []int, error) {
	if n <= 0 {
		return nil, nil, ErrEmpty
	}
	const margin = 0.25
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, 0, n*2)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		label := i % 2
		sign := float64(2*label - 1)
		for {
			x := sign*1.5 + rng.NormFloat64()*0.6
			y := sign*1.5 + rng.NormFloat64()*0.6
			if sign*(x+y) > margin {
				data = append(data, x, y)
				break
			}
		}
		labels[i] = label
	}
	return mat.NewDense(n, 2, data), labels, nil
}

// Blobs draws n samples from one isotropic Gaussian per class with the given
// spread. Centre k lies 3*(1+k/features) along axis k%features.
func Blobs(n, classes, features int, spread float64, seed int64) (*mat.Dense, []int, error) {
	if n <= 0 {
		return nil, nil, ErrEmpty
	}
	if classes < 2 || features < 1 {
		return nil, nil, errors.Errorf("dataset: blobs need >= 2 classes and >= 1 feature (got %d, %d)", classes, features)
	}
	if spread <= 0 || math.IsNaN(spread) {
		return nil, nil, errors.Errorf("dataset: spread must be > 0 (got %g)", spread)
	}
	rng := rand.New(rand.NewSource(seed))
	centres := make([][]float64, classes)
	for k := range centres {
		c := make([]float64, features)
		c[k%features] = 3 * float64(1+k/features)
		centres[k] = c
	}
	data := make([]float64, 0, n*features)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		k := i % classes
		for _, v := range centres[k] {
			data = append(data, v+rng.NormFloat64()*spread)
		}
		labels[i] = k
	}
	return mat.NewDense(n, features, data), labels, nil
}

func sampleKey(i int) string {
	return fmt.Sprintf("%06d", i)
}
