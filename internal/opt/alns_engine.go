package opt

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"time"
)

// missPenalty is charged per required node left out of every route. It
// dominates any real cost so an incomplete solution never beats a complete one.
const missPenalty int64 = 1_000_000_000

type Problem struct {
	NodeCount  int
	Starts     []int // per vehicle
	Ends       []int // per vehicle
	Arc        func(from, to int) int64
	Demand     func(node int) int64
	Capacities []int64 // per vehicle

	FixedVehicleCost int64 // charged once per vehicle with a non-empty route
	SpanCoefficient  int64 // charged on the most expensive route

	IterationsLimit         int       // optional iteration cap
	StallLimit              int       // optional cap on iterations without a new best
	InitialTemp             float64   // initial temperature for SA; derived from the seed cost when zero
	Cooling                 float64   // cooling factor per iteration
	InitialRemovalWeights   []float64 // [random, shaw]
	InitialInsertionWeights []float64 // [greedy, regret2]
}

type RoutePlan struct {
	Vehicle int
	Order   []int // interior nodes, start and end excluded
}

type Solution struct {
	Plans      []RoutePlan
	Unassigned []int
	Cost       int64
}

func (s Solution) clone() Solution {
	out := Solution{Plans: make([]RoutePlan, len(s.Plans)), Cost: s.Cost}
	for i, pl := range s.Plans {
		out.Plans[i] = RoutePlan{Vehicle: pl.Vehicle, Order: append([]int(nil), pl.Order...)}
	}
	out.Unassigned = append([]int(nil), s.Unassigned...)
	return out
}

func (s Solution) assigned() []int {
	var out []int
	for _, pl := range s.Plans {
		out = append(out, pl.Order...)
	}
	return out
}

// Stop reasons reported in Metrics.
const (
	StopTime       = "time"
	StopIterations = "iterations"
	StopStall      = "stall"
	StopCancelled  = "cancelled"
)

type Metrics struct {
	RemovalSelects        [2]int // random, shaw
	InsertSelects         [2]int // greedy, regret2
	Iterations            int
	Improvements          int
	AcceptedWorse         int
	SeedCost              int64
	BestCost              int64
	FinalCost             int64
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	Snapshots             []WeightSnapshot
	StopReason            string
	Elapsed               time.Duration
}

type WeightSnapshot struct {
	Iteration int
	Removal   [2]float64
	Insertion [2]float64
}

// Map flattens the metrics for JSON reports.
func (m Metrics) Map() map[string]any {
	return map[string]any{
		"iterations":            m.Iterations,
		"improvements":          m.Improvements,
		"acceptedWorse":         m.AcceptedWorse,
		"seedCost":              m.SeedCost,
		"bestCost":              m.BestCost,
		"finalCost":             m.FinalCost,
		"removalSelects":        m.RemovalSelects,
		"insertSelects":         m.InsertSelects,
		"finalRemovalWeights":   m.FinalRemovalWeights,
		"finalInsertionWeights": m.FinalInsertionWeights,
		"snapshots":             len(m.Snapshots),
		"stopReason":            m.StopReason,
		"elapsedMs":             m.Elapsed.Milliseconds(),
	}
}

// instance is a Problem with arcs and demands materialised once.
type instance struct {
	Problem
	arc      [][]int64
	demand   []int64
	required []int
}

func newInstance(p Problem) *instance {
	n := p.NodeCount
	in := &instance{Problem: p, demand: make([]int64, n)}
	cells := make([]int64, n*n)
	in.arc = make([][]int64, n)
	for i := range in.arc {
		in.arc[i] = cells[i*n : (i+1)*n]
		for j := range in.arc[i] {
			in.arc[i][j] = p.Arc(i, j)
		}
	}
	terminal := make([]bool, n)
	for v := range p.Starts {
		terminal[p.Starts[v]] = true
		terminal[p.Ends[v]] = true
	}
	for i := 0; i < n; i++ {
		in.demand[i] = p.Demand(i)
		if !terminal[i] {
			in.required = append(in.required, i)
		}
	}
	return in
}

// Solve runs an ALNS search with simulated-annealing acceptance. It always
// returns the best solution seen, which may still hold unassigned nodes.
func Solve(ctx context.Context, p Problem, seed int64, timeBudget time.Duration) (Solution, Metrics) {
	started := time.Now()
	if seed == 0 {
		seed = started.UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	in := newInstance(p)
	deadline := started.Add(timeBudget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// seed solution via greedy insertion
	curr := in.seed(ctx)
	best := curr
	// operator weights (removal + insertion)
	remW := []float64{1, 1} // random, shaw
	insW := []float64{1, 1} // greedy, regret2
	if len(p.InitialRemovalWeights) == 2 {
		remW = []float64{p.InitialRemovalWeights[0], p.InitialRemovalWeights[1]}
	}
	if len(p.InitialInsertionWeights) == 2 {
		insW = []float64{p.InitialInsertionWeights[0], p.InitialInsertionWeights[1]}
	}
	temp := 0.01*float64(curr.Cost) + 1
	if p.InitialTemp > 0 {
		temp = p.InitialTemp
	}
	cool := 0.995
	if p.Cooling > 0 && p.Cooling < 1 {
		cool = p.Cooling
	}
	m := Metrics{SeedCost: curr.Cost, BestCost: best.Cost, StopReason: StopTime}
	snapshotEvery := 50
	stall := 0
	for len(in.required) > 0 {
		if err := ctx.Err(); err != nil {
			m.StopReason = StopCancelled
			if errors.Is(err, context.DeadlineExceeded) {
				m.StopReason = StopTime
			}
			break
		}
		if p.IterationsLimit > 0 && m.Iterations >= p.IterationsLimit {
			m.StopReason = StopIterations
			break
		}
		if p.StallLimit > 0 && stall >= p.StallLimit {
			m.StopReason = StopStall
			break
		}
		m.Iterations++
		k := 1 + rng.Intn(3)
		// select operators by roulette wheel
		op := selectOp(remW, rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW, rng)
		m.InsertSelects[ip]++

		var removed []int
		switch op {
		case 0:
			removed = randomRemoval(curr, k, rng)
		case 1:
			removed = shawRemoval(in, curr, k, rng)
		}
		cand := removeNodes(curr, removed)
		// previously unplaced nodes get another chance every iteration
		removed = append(removed, cand.Unassigned...)
		cand.Unassigned = nil
		switch ip {
		case 0:
			cand = greedyInsert(in, cand, removed)
		case 1:
			cand = regretInsert(in, cand, removed)
		}
		cand = in.improve(ctx, cand)

		// acceptance criterion (simulated annealing)
		delta := float64(cand.Cost - curr.Cost)
		if delta <= 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			if cand.Cost < best.Cost {
				best = cand
				remW[op] += 0.1
				insW[ip] += 0.1
				m.Improvements++
				m.BestCost = best.Cost
				stall = 0
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				if delta > 0 {
					m.AcceptedWorse++
				}
				stall++
			}
		} else {
			// slight penalty for non-acceptance
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			stall++
		}
		temp *= cool
		// snapshot weights
		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: m.Iterations, Removal: [2]float64{remW[0], remW[1]}, Insertion: [2]float64{insW[0], insW[1]}})
		}
	}
	m.FinalCost = best.Cost
	m.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	m.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	m.Elapsed = time.Since(started)
	return best, m
}

func (in *instance) seed(ctx context.Context) Solution {
	sol := Solution{Plans: make([]RoutePlan, len(in.Starts))}
	for v := range sol.Plans {
		sol.Plans[v] = RoutePlan{Vehicle: v, Order: []int{}}
	}
	sol = greedyInsert(in, sol, in.required)
	return in.improve(ctx, sol)
}

func (in *instance) routeCost(v int, order []int) int64 {
	if len(order) == 0 {
		return 0
	}
	prev := in.Starts[v]
	total := int64(0)
	for _, n := range order {
		total += in.arc[prev][n]
		prev = n
	}
	return total + in.arc[prev][in.Ends[v]]
}

func (in *instance) load(order []int) int64 {
	total := int64(0)
	for _, n := range order {
		total += in.demand[n]
	}
	return total
}

func (in *instance) cost(s Solution) int64 {
	l := in.ledgerFor(s)
	return l.objective(len(s.Unassigned))
}

// insertDelta is the arc cost change of putting node at pos, including the
// fixed cost when the route is opened by it.
func (in *instance) insertDelta(pl RoutePlan, node, pos int) int64 {
	prev, next := in.Starts[pl.Vehicle], in.Ends[pl.Vehicle]
	if pos > 0 {
		prev = pl.Order[pos-1]
	}
	if pos < len(pl.Order) {
		next = pl.Order[pos]
	}
	if len(pl.Order) == 0 {
		return in.arc[prev][node] + in.arc[node][next] + in.FixedVehicleCost
	}
	return in.arc[prev][node] + in.arc[node][next] - in.arc[prev][next]
}

func insertAt(order []int, pos, node int) []int {
	order = append(order, 0)
	copy(order[pos+1:], order[pos:])
	order[pos] = node
	return order
}

func randomRemoval(sol Solution, k int, rng *rand.Rand) []int {
	all := sol.assigned()
	var removed []int
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// shawRemoval selects a random node and the k-1 nodes cheapest to reach
// from it in either direction.
func shawRemoval(in *instance, sol Solution, k int, rng *rand.Rand) []int {
	assigned := sol.assigned()
	if len(assigned) == 0 {
		return nil
	}
	seed := assigned[rng.Intn(len(assigned))]
	type pair struct {
		idx   int
		score int64
	}
	rel := make([]pair, 0, len(assigned))
	for _, idx := range assigned {
		if idx == seed {
			continue
		}
		rel = append(rel, pair{idx: idx, score: in.arc[seed][idx] + in.arc[idx][seed]})
	}
	sort.Slice(rel, func(i, j int) bool {
		if rel[i].score != rel[j].score {
			return rel[i].score < rel[j].score
		}
		return rel[i].idx < rel[j].idx
	})
	removed := []int{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].idx)
	}
	return removed
}

func removeNodes(sol Solution, removed []int) Solution {
	out := sol.clone()
	if len(removed) == 0 {
		return out
	}
	rm := make(map[int]bool, len(removed))
	for _, i := range removed {
		rm[i] = true
	}
	for i := range out.Plans {
		kept := out.Plans[i].Order[:0]
		for _, idx := range out.Plans[i].Order {
			if !rm[idx] {
				kept = append(kept, idx)
			}
		}
		out.Plans[i].Order = kept
	}
	return out
}

// greedyInsert inserts nodes by cheapest feasible insertion. Nodes that fit
// no route are left in Unassigned.
func greedyInsert(in *instance, sol Solution, removed []int) Solution {
	nodes := append([]int(nil), removed...)
	loads := make([]int64, len(sol.Plans))
	for i, pl := range sol.Plans {
		loads[i] = in.load(pl.Order)
	}
	for len(nodes) > 0 {
		bestPlan, bestPos, bestNode := -1, -1, 0
		bestCost := int64(math.MaxInt64)
		for ni, idx := range nodes {
			for vi, pl := range sol.Plans {
				if loads[vi]+in.demand[idx] > in.Capacities[vi] {
					continue
				}
				for pos := 0; pos <= len(pl.Order); pos++ {
					c := in.insertDelta(pl, idx, pos)
					if c < bestCost {
						bestCost = c
						bestPlan = vi
						bestPos = pos
						bestNode = ni
					}
				}
			}
		}
		if bestPlan == -1 {
			sol.Unassigned = append(sol.Unassigned, nodes...)
			break
		}
		node := nodes[bestNode]
		sol.Plans[bestPlan].Order = insertAt(sol.Plans[bestPlan].Order, bestPos, node)
		loads[bestPlan] += in.demand[node]
		nodes = append(nodes[:bestNode], nodes[bestNode+1:]...)
	}
	sol.Cost = in.cost(sol)
	return sol
}

// regretInsert places first the node that loses most by not getting its
// best route (regret-2 over routes).
func regretInsert(in *instance, sol Solution, removed []int) Solution {
	nodes := append([]int(nil), removed...)
	loads := make([]int64, len(sol.Plans))
	for i, pl := range sol.Plans {
		loads[i] = in.load(pl.Order)
	}
	for len(nodes) > 0 {
		pick, pickPlan, pickPos := -1, -1, -1
		var pickRegret, pickCost int64
		for ni, idx := range nodes {
			best1, best2 := int64(math.MaxInt64), int64(math.MaxInt64)
			bp, bpos := -1, -1
			for vi, pl := range sol.Plans {
				if loads[vi]+in.demand[idx] > in.Capacities[vi] {
					continue
				}
				routeBest, routePos := int64(math.MaxInt64), -1
				for pos := 0; pos <= len(pl.Order); pos++ {
					if c := in.insertDelta(pl, idx, pos); c < routeBest {
						routeBest, routePos = c, pos
					}
				}
				if routeBest < best1 {
					best2 = best1
					best1, bp, bpos = routeBest, vi, routePos
				} else if routeBest < best2 {
					best2 = routeBest
				}
			}
			if bp == -1 {
				continue
			}
			// a node with a single feasible route goes first
			regret := missPenalty
			if best2 != math.MaxInt64 {
				regret = best2 - best1
			}
			if pick == -1 || regret > pickRegret || (regret == pickRegret && best1 < pickCost) {
				pick, pickPlan, pickPos = ni, bp, bpos
				pickRegret, pickCost = regret, best1
			}
		}
		if pick == -1 {
			sol.Unassigned = append(sol.Unassigned, nodes...)
			break
		}
		node := nodes[pick]
		sol.Plans[pickPlan].Order = insertAt(sol.Plans[pickPlan].Order, pickPos, node)
		loads[pickPlan] += in.demand[node]
		nodes = append(nodes[:pick], nodes[pick+1:]...)
	}
	sol.Cost = in.cost(sol)
	return sol
}

// ledger caches per-route cost and load while local search edits routes.
type ledger struct {
	in   *instance
	cost []int64
	load []int64
	used []bool
}

func (in *instance) ledgerFor(s Solution) *ledger {
	l := &ledger{in: in, cost: make([]int64, len(s.Plans)), load: make([]int64, len(s.Plans)), used: make([]bool, len(s.Plans))}
	for i, pl := range s.Plans {
		l.set(i, pl.Order)
	}
	return l
}

func (l *ledger) set(v int, order []int) {
	l.cost[v] = l.in.routeCost(v, order)
	l.load[v] = l.in.load(order)
	l.used[v] = len(order) > 0
}

func (l *ledger) objective(missing int) int64 {
	sum, peak, used := int64(0), int64(0), int64(0)
	for v, c := range l.cost {
		sum += c
		if c > peak {
			peak = c
		}
		if l.used[v] {
			used++
		}
	}
	return sum + l.in.FixedVehicleCost*used + l.in.SpanCoefficient*peak + missPenalty*int64(missing)
}

// tryPair replaces routes a and b when both fit their capacity and the
// objective drops.
func (l *ledger) tryPair(sol *Solution, a int, oa []int, b int, ob []int) bool {
	if l.in.load(oa) > l.in.Capacities[a] || l.in.load(ob) > l.in.Capacities[b] {
		return false
	}
	before := l.objective(0)
	ca, la, ua := l.cost[a], l.load[a], l.used[a]
	cb, lb, ub := l.cost[b], l.load[b], l.used[b]
	l.set(a, oa)
	l.set(b, ob)
	if l.objective(0) < before {
		sol.Plans[a].Order = oa
		sol.Plans[b].Order = ob
		return true
	}
	l.cost[a], l.load[a], l.used[a] = ca, la, ua
	l.cost[b], l.load[b], l.used[b] = cb, lb, ub
	return false
}

// improve runs the local search neighbourhoods until none of them helps or
// ctx is done. A pass already under way finishes.
func (in *instance) improve(ctx context.Context, sol Solution) Solution {
	for ctx.Err() == nil {
		improved := false
		for v := range sol.Plans {
			if twoOptImprove(in, &sol.Plans[v]) {
				improved = true
			}
			if orOptImprove(in, &sol.Plans[v]) {
				improved = true
			}
		}
		if len(sol.Plans) > 1 {
			l := in.ledgerFor(sol)
			if relocateImprove(l, &sol) || crossExchangeImprove(l, &sol) || twoOptStarImprove(l, &sol) {
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	sol.Cost = in.cost(sol)
	return sol
}

// twoOptImprove reverses route segments between the fixed start and end.
func twoOptImprove(in *instance, pl *RoutePlan) bool {
	if len(pl.Order) < 2 {
		return false
	}
	path := make([]int, 0, len(pl.Order)+2)
	path = append(append(append(path, in.Starts[pl.Vehicle]), pl.Order...), in.Ends[pl.Vehicle])
	before := PathCost(in.arcAt, path)
	best := ImproveOrder2Opt(in.arcAt, path, len(pl.Order))
	if PathCost(in.arcAt, best) >= before {
		return false
	}
	pl.Order = best[1 : len(best)-1]
	return true
}

func (in *instance) arcAt(from, to int) int64 { return in.arc[from][to] }

// orOptImprove moves segments of up to three nodes elsewhere in the route.
func orOptImprove(in *instance, pl *RoutePlan) bool {
	changed := false
	bestCost := in.routeCost(pl.Vehicle, pl.Order)
	improved := true
	for improved {
		improved = false
		n := len(pl.Order)
		for seg := 1; seg <= 3 && seg < n; seg++ {
			for i := 0; i+seg <= n; i++ {
				rest := make([]int, 0, n-seg)
				rest = append(rest, pl.Order[:i]...)
				rest = append(rest, pl.Order[i+seg:]...)
				for j := 0; j <= len(rest); j++ {
					if j == i {
						continue
					}
					cand := make([]int, 0, n)
					cand = append(cand, rest[:j]...)
					cand = append(cand, pl.Order[i:i+seg]...)
					cand = append(cand, rest[j:]...)
					if c := in.routeCost(pl.Vehicle, cand); c < bestCost {
						pl.Order, bestCost = cand, c
						improved, changed = true, true
						break
					}
				}
				if improved {
					break
				}
			}
			if improved {
				break
			}
		}
	}
	return changed
}

// relocateImprove moves a single node to another route.
func relocateImprove(l *ledger, sol *Solution) bool {
	changed := false
	for a := range sol.Plans {
		for b := range sol.Plans {
			if a == b {
				continue
			}
			for i := 0; i < len(sol.Plans[a].Order); i++ {
				pa, pb := sol.Plans[a].Order, sol.Plans[b].Order
				node := pa[i]
				if l.load[b]+l.in.demand[node] > l.in.Capacities[b] {
					continue
				}
				oa := append(append([]int(nil), pa[:i]...), pa[i+1:]...)
				for pos := 0; pos <= len(pb); pos++ {
					ob := insertAt(append([]int(nil), pb...), pos, node)
					if l.tryPair(sol, a, oa, b, ob) {
						changed = true
						break
					}
				}
			}
		}
	}
	return changed
}

// crossExchangeImprove swaps segments of one or two nodes between routes.
func crossExchangeImprove(l *ledger, sol *Solution) bool {
	changed := false
	m := len(sol.Plans)
	for a := 0; a < m; a++ {
		for b := a + 1; b < m; b++ {
			for i := 0; i < len(sol.Plans[a].Order); i++ {
				for j := 0; j < len(sol.Plans[b].Order); j++ {
					for la := 1; la <= 2; la++ {
						for lb := 1; lb <= 2; lb++ {
							pa, pb := sol.Plans[a].Order, sol.Plans[b].Order
							if i+la > len(pa) || j+lb > len(pb) {
								continue
							}
							oa := make([]int, 0, len(pa)-la+lb)
							oa = append(append(append(oa, pa[:i]...), pb[j:j+lb]...), pa[i+la:]...)
							ob := make([]int, 0, len(pb)-lb+la)
							ob = append(append(append(ob, pb[:j]...), pa[i:i+la]...), pb[j+lb:]...)
							if l.tryPair(sol, a, oa, b, ob) {
								changed = true
							}
						}
					}
				}
			}
		}
	}
	return changed
}

// twoOptStarImprove exchanges the tails of two routes.
func twoOptStarImprove(l *ledger, sol *Solution) bool {
	changed := false
	m := len(sol.Plans)
	for a := 0; a < m; a++ {
		for b := a + 1; b < m; b++ {
			for i := 0; i <= len(sol.Plans[a].Order); i++ {
				for j := 0; j <= len(sol.Plans[b].Order); j++ {
					pa, pb := sol.Plans[a].Order, sol.Plans[b].Order
					if i > len(pa) || j > len(pb) {
						continue
					}
					oa := append(append([]int(nil), pa[:i]...), pb[j:]...)
					ob := append(append([]int(nil), pb[:j]...), pa[i:]...)
					if l.tryPair(sol, a, oa, b, ob) {
						changed = true
					}
				}
			}
		}
	}
	return changed
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
