package structural

import (
	"math"
)

// ShannonEntropy computes byte-frequency Shannon entropy, range [0, 8].
// Values above 7.0 suggest compression, encryption or packing.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	ent := 0.0
	total := float64(len(data))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		ent -= p * math.Log2(p)
	}
	return ent
}
