package opt

// ArcFunc prices the arc between two node indices.
type ArcFunc func(from, to int) int64

// ImproveOrder2Opt applies 2-opt to a path whose first and last nodes stay
// fixed and returns the cheaper order.
func ImproveOrder2Opt(arc ArcFunc, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestCost := PathCost(arc, best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				newOrder := twoOptSwap(best, i, k)
				c := PathCost(arc, newOrder)
				if c < bestCost {
					best = newOrder
					bestCost = c
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// PathCost sums the arcs along order.
func PathCost(arc ArcFunc, order []int) int64 {
	total := int64(0)
	for i := 0; i < len(order)-1; i++ {
		total += arc(order[i], order[i+1])
	}
	return total
}
