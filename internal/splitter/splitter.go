// Package splitter implements C6, the splitter chooser: from a sampled,
// sorted key set, pick at most maxSplits keys so the resulting buckets'
// populations vary by at most a factor of skew from the mean.
package splitter

import (
	"math"
	"sort"

	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/xrand"
)

// Skew is the targeted max(bucket size)/mean(bucket size) ratio (§4.6, §8 P8).
const Skew = 1.1

// RequiredSampleSize returns the DeWitt-1991 lower bound on sample size
// needed for minSplits+1 roughly-equal buckets under Skew: N_min =
// minSplits+1, needed = ceil(N_min*2*ln(N_min/1e-6) / ((1-1/skew)^2*skew) + 1000).
func RequiredSampleSize(minSplits int) int {
	nMin := float64(minSplits + 1)
	if nMin < 1 {
		nMin = 1
	}
	needed := nMin*2*math.Log(nMin/1e-6)/(math.Pow(1-1/Skew, 2)*Skew) + 1000
	return int(math.Ceil(needed))
}

// Choose picks split keys from sampleKeys (assumed already ascending —
// callers merge worker samples before calling), returning at most maxSplits
// keys. A sample of at most minSplits+1 keys is cut at minSplits+1
// equal-width positions; a larger one goes through the staircase schedule,
// which does not enforce minSplits as a lower bound. Duplicate cut keys are
// dropped, so fewer splits can come back. workerCount drives the staircase
// schedule's step count. rng must be the same deterministic source used
// elsewhere in the job so repeated runs choose the same splits (P11).
func Choose(sampleKeys []key.Key, minSplits, maxSplits, workerCount int, rng xrand.Source) []key.Key {
	if len(sampleKeys) == 0 || maxSplits <= 0 {
		return nil
	}
	nMin := minSplits + 1

	var cutIdx []int
	if len(sampleKeys) <= nMin {
		cutIdx = equalWidthCuts(len(sampleKeys), nMin)
	} else {
		cutIdx = staircaseCuts(len(sampleKeys), maxSplits, workerCount, rng)
	}

	return dedupSplits(sampleKeys, cutIdx)
}

// equalWidthCuts returns indices ⌊(i+1)·n/(target+1)⌋ for i in
// [0, target-1] — used when the sample is too small for the staircase
// schedule to make sense (§4.6 "if |sample| ≤ N_min").
func equalWidthCuts(n, target int) []int {
	var idx []int
	for i := 0; i < target; i++ {
		pos := (i + 1) * n / (target + 1)
		if pos >= n {
			pos = n - 1
		}
		idx = append(idx, pos)
	}
	return idx
}

// staircaseCuts implements §4.6's staggered cut schedule: the first
// workerCount cuts are spaced by min_chunk+i*step so early workers' first
// pass doesn't all land on disk at once; the last 2*workerCount cuts are
// spaced by a small jittered amount; the middle run uses a wider jitter
// range. min_chunk/max_chunk here are expressed as sample-index deltas;
// maxSplits caps the number of cuts, and no minimum count is enforced.
func staircaseCuts(n, maxSplits int, workerCount int, rng xrand.Source) []int {
	if workerCount < 1 {
		workerCount = 1
	}
	if maxSplits > n-1 {
		maxSplits = n - 1
	}
	if maxSplits < 1 {
		return nil
	}

	minChunk := n / (maxSplits + 1)
	if minChunk < 1 {
		minChunk = 1
	}
	maxChunk := minChunk * 2
	if maxChunk <= minChunk {
		maxChunk = minChunk + 1
	}
	step := float64(maxChunk-minChunk) / float64(workerCount)

	var idx []int
	pos := 0
	cutNum := int64(0)
	for len(idx) < maxSplits && pos < n-1 {
		var spacing int
		switch {
		case cutNum < int64(workerCount):
			spacing = minChunk + int(float64(cutNum)*step)
		case cutNum >= int64(maxSplits)-int64(2*workerCount):
			spacing = minChunk + int(rng.IthRandomInRange(cutNum, int64(minChunk/2+1)))
		default:
			spacing = minChunk + int(rng.IthRandomInRange(cutNum, int64(maxChunk-minChunk+1)))
		}
		if spacing < 1 {
			spacing = 1
		}
		pos += spacing
		if pos >= n {
			break
		}
		idx = append(idx, pos)
		cutNum++
	}
	return idx
}

// dedupSplits maps sample indices to keys, dropping any cut whose key
// duplicates the previous accepted cut (duplicate-valued targets reduce
// final K, per §4.6) and enforcing strict increase.
func dedupSplits(sampleKeys []key.Key, idx []int) []key.Key {
	sort.Ints(idx)
	var out []key.Key
	for _, i := range idx {
		k := sampleKeys[i]
		if len(out) > 0 && !out[len(out)-1].Less(k) {
			continue
		}
		out = append(out, k)
	}
	return out
}
