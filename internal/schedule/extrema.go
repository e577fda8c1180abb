package schedule

import "github.com/jyron/tradershub/internal/pricing"

// localExtrema finds the indices of local minima and maxima in a
// chronologically sorted daily close series. A day is an extremum when its
// close is the minimum (resp. maximum) within a centered window of the given
// width; at the edges the window is truncated rather than the day skipped,
// so on a strictly monotonic series the first day is the only minimum and
// the last day the only maximum. Comparison is non-strict; a day whose
// truncated window is completely flat would qualify as both, and is
// classified as a minimum only.
func localExtrema(bars []pricing.Bar, window int) (mins, maxs []int) {
	n := len(bars)
	if n < window {
		return nil, nil
	}
	half := window / 2

	for i := 0; i < n; i++ {
		left := i - half
		if left < 0 {
			left = 0
		}
		right := i + half + 1
		if right > n {
			right = n
		}

		lo, hi := bars[left].Close, bars[left].Close
		for j := left + 1; j < right; j++ {
			if bars[j].Close < lo {
				lo = bars[j].Close
			}
			if bars[j].Close > hi {
				hi = bars[j].Close
			}
		}

		switch {
		case bars[i].Close == lo:
			mins = append(mins, i)
		case bars[i].Close == hi:
			maxs = append(maxs, i)
		}
	}
	return mins, maxs
}

// spreadIndices returns up to want evenly spaced indices into a list of
// length n, so selections span the full range instead of clustering at the
// start.
func spreadIndices(n, want int) []int {
	if n <= want {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if want == 1 {
		return []int{0}
	}
	step := float64(n-1) / float64(want-1)
	out := make([]int, 0, want)
	for i := 0; i < want; i++ {
		out = append(out, int(float64(i)*step+0.5))
	}
	return out
}
