// Package encoding converts categorical labels to and from one-hot rows.
package encoding

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// OneHot is a fitted bijection between category values and column indices.
// The category list is learned once by Fit and reused for every later
// Encode and Decode call.
type OneHot struct {
	categories []float64
	index      map[float64]int
}

// Fit learns the distinct categories in labels, sorted ascending.
func Fit(labels []float64) *OneHot {
	index := make(map[float64]int)
	var categories []float64
	for _, l := range labels {
		if _, ok := index[l]; !ok {
			index[l] = 0
			categories = append(categories, l)
		}
	}
	sort.Float64s(categories)
	for i, c := range categories {
		index[c] = i
	}
	return &OneHot{categories: categories, index: index}
}

// NumCategories returns the number of distinct fitted categories.
func (e *OneHot) NumCategories() int {
	return len(e.categories)
}

// Category returns the category value for a column index.
func (e *OneHot) Category(i int) (float64, error) {
	if i < 0 || i >= len(e.categories) {
		return 0, fmt.Errorf("encoding: category index %d out of range [0, %d)", i, len(e.categories))
	}
	return e.categories[i], nil
}

// Encode maps each label to a one-hot row. Labels not seen by Fit
// are an error.
func (e *OneHot) Encode(labels []float64) (*mat.Dense, error) {
	out := mat.NewDense(len(labels), len(e.categories), nil)
	for i, l := range labels {
		j, ok := e.index[l]
		if !ok {
			return nil, fmt.Errorf("encoding: label %v was not seen during fit", l)
		}
		out.Set(i, j, 1)
	}
	return out, nil
}

// Decode maps each row back to its category by arg-max.
func (e *OneHot) Decode(rows *mat.Dense) []float64 {
	n, _ := rows.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = e.categories[floats.MaxIdx(rows.RawRowView(i))]
	}
	return out
}
