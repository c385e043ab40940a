package indexer

import (
	"math"
	"sort"
	"unicode/utf8"
)

// ChunkSizeStats summarizes chunk lengths in runes.
type ChunkSizeStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

func chunkSizeStats(chunks []Chunk) ChunkSizeStats {
	sizes := make([]int, len(chunks))
	for i, c := range chunks {
		sizes[i] = utf8.RuneCountInString(c.Text)
	}
	return computeSizeStats(sizes)
}

// computeSizeStats computes min, max, mean, and p95 from sizes.
func computeSizeStats(sizes []int) ChunkSizeStats {
	if len(sizes) == 0 {
		return ChunkSizeStats{}
	}

	sorted := make([]int, len(sizes))
	copy(sorted, sizes)
	sort.Ints(sorted)

	sum := 0
	for _, n := range sorted {
		sum += n
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkSizeStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
