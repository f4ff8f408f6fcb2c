// Package vecmath holds the numeric routines used to compare embeddings.
package vecmath

import "math"

// CosineSimilarity returns dot(a,b) / (|a| * |b|).
//
// Vectors of different length are not comparable and score 0, the same as
// an empty vector or a vector with zero norm. Callers treat 0 as "not similar".
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// CosineWithNorm is CosineSimilarity with the norm of a precomputed, for
// scans that compare one query against many stored vectors.
func CosineWithNorm(a []float32, aNorm float64, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if bNormSq == 0 {
		return 0
	}
	return dot / (aNorm * math.Sqrt(bNormSq))
}
