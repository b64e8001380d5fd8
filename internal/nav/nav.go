// Package nav relocates the controlled character to the next map on the
// route once a location's quota is satisfied. It is a cooperatively
// scheduled state machine: the runner calls Step exactly once per host
// frame, every bounded wait is frame-counted, and nothing here blocks.
package nav

import (
	"fmt"
	"log"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/protocol"
	"github.com/highvoltaage/pokebot-prof-oak/internal/route"
	"github.com/highvoltaage/pokebot-prof-oak/internal/tuning"
)

// StepResult tells the runner what happened during one frame.
type StepResult int

const (
	// StepIdle means no travel is in progress.
	StepIdle StepResult = iota
	// StepWorking means the navigator consumed the frame and wants the next.
	StepWorking
	// StepArrived means travel finished and control is released.
	StepArrived
	// StepAborted means this attempt was abandoned; a later quota-met
	// signal may start a fresh one.
	StepAborted
)

// Frame is the per-tick snapshot the runner feeds into Step.
type Frame struct {
	Counter uint64
	Map     host.MapID
	MapName string
	Coord   host.Coord
}

// Target is the active travel goal. Dest is memoized so retries for the
// same target converge on one tile.
type Target struct {
	ID     string
	Index  int
	Map    host.MapID
	Method host.Method
	Dest   *host.Coord
}

type phase int

const (
	phasePickDest phase = iota
	phaseDirect
	phaseAssess
	phaseWarpPick
	phaseWarpApproach
	phaseWarpStep
	phaseWarpWait
	phaseStepOff
	phaseRefine
	phaseNudgeOut
	phaseNudgeBack
)

// fallbackDest is used when no tile grid is available for the target map.
var fallbackDest = host.Coord{X: 8, Y: 8}

// Navigator drives warp-graph traversal and direct movement toward the
// next route stop. One instance per controlled character.
type Navigator struct {
	order   *route.Order
	data    host.MapData
	mover   host.Mover
	input   host.Input
	budgets tuning.NavBudgets
	logger  *log.Logger
	rng     *rand.Rand

	target *Target
	phase  phase

	moveInFlight   bool
	directAttempts int
	refineAttempts int
	dialogPresses  int
	warpCycles     int

	candidates   []host.Warp
	candidateIdx int
	preWarpMap   host.MapID
	departedMap  host.MapID
	waitFrames   int
	nudgeFrom    host.Coord
}

func New(order *route.Order, data host.MapData, mover host.Mover, input host.Input, budgets tuning.NavBudgets, logger *log.Logger) *Navigator {
	return &Navigator{
		order:       order,
		data:        data,
		mover:       mover,
		input:       input,
		budgets:     budgets,
		logger:      logger,
		rng:         rand.New(rand.NewSource(rand.Int63())),
		departedMap: host.UnknownMap,
		preWarpMap:  host.UnknownMap,
	}
}

// Idle reports whether the navigator can accept a new target.
func (n *Navigator) Idle() bool { return n.target == nil }

// Current returns the active travel goal, or nil.
func (n *Navigator) Current() *Target { return n.target }

// Begin accepts a handoff: travel from the current location to the next
// navigable route stop. Rejected while a target is already active.
func (n *Navigator) Begin(from host.MapID, fromName string, method host.Method) error {
	if n.target != nil {
		return fmt.Errorf("%s: busy with %s toward %s", protocol.ErrNavBusy, n.target.ID, n.target.Map)
	}
	idx, ok := n.order.Resolve(from, fromName)
	if !ok {
		n.logf("%s: cannot place %s (%s) on the route, assuming start", protocol.ErrMapUnresolved, from, fromName)
	}
	next, ok := n.order.NextNavigable(idx)
	if !ok {
		return fmt.Errorf("%s: no navigable stop after index %d", protocol.ErrNavUnroutable, idx)
	}
	entry := n.order.Entry(next)
	n.target = &Target{
		ID:     uuid.NewString(),
		Index:  next,
		Map:    entry.Map,
		Method: method,
	}
	if entry.Dest != nil {
		c := *entry.Dest
		n.target.Dest = &c
	}
	n.phase = phasePickDest
	n.resetCounters()
	n.departedMap = from
	n.logf("handoff %s: %s (%s) -> %s (%s)", n.target.ID, fromName, from, entry.Name, entry.Map)
	return nil
}

// Cancel abandons the active target from any phase and returns to idle.
func (n *Navigator) Cancel() {
	if n.target == nil {
		return
	}
	n.logf("cancel %s", n.target.ID)
	n.mover.CancelMove()
	n.input.ResetHeldInputs()
	n.clear()
}

// Step advances travel by at most one atomic action. Called once per frame.
func (n *Navigator) Step(f Frame) StepResult {
	if n.target == nil {
		return StepIdle
	}

	// Any modal prompt is dismissed before movement is attempted.
	if n.input.AwaitingInput() {
		if n.dialogPresses >= n.budgets.DialogPresses {
			n.logf("dialog did not clear after %d presses, abandoning %s", n.dialogPresses, n.target.ID)
			n.abort()
			return StepAborted
		}
		button := "B"
		if n.dialogPresses%2 == 0 {
			button = "A"
		}
		n.input.Press(button)
		n.dialogPresses++
		return StepWorking
	}
	n.dialogPresses = 0

	switch n.phase {
	case phasePickDest:
		return n.stepPickDest()
	case phaseDirect:
		return n.stepDirect(f)
	case phaseAssess:
		if f.Map == n.target.Map {
			n.phase = phaseRefine
		} else {
			n.phase = phaseWarpPick
		}
		return StepWorking
	case phaseWarpPick:
		return n.stepWarpPick(f)
	case phaseWarpApproach:
		return n.stepWarpApproach(f)
	case phaseWarpStep:
		return n.stepWarpStep(f)
	case phaseWarpWait:
		return n.stepWarpWait(f)
	case phaseStepOff:
		return n.stepStepOff(f)
	case phaseRefine:
		return n.stepRefine(f)
	case phaseNudgeOut:
		return n.stepNudge(f, phaseNudgeBack)
	case phaseNudgeBack:
		return n.stepNudgeBack(f)
	}
	return StepWorking
}

// stepPickDest memoizes the destination tile: explicit route coordinate,
// else a random terrain-matching tile, else near the map center.
func (n *Navigator) stepPickDest() StepResult {
	if n.target.Dest == nil {
		dest := n.pickTile(n.target.Map, n.target.Method)
		n.target.Dest = &dest
	}
	n.phase = phaseDirect
	return StepWorking
}

func (n *Navigator) pickTile(m host.MapID, method host.Method) host.Coord {
	grid, ok := n.data.Grid(m)
	if !ok || grid.Width <= 0 || grid.Height <= 0 {
		n.logf("no tile grid for %s, falling back to %v", m, fallbackDest)
		return fallbackDest
	}
	var matches []host.Coord
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			if method.Matches(grid.At(x, y)) {
				matches = append(matches, host.Coord{X: x, Y: y})
			}
		}
	}
	if len(matches) == 0 {
		n.logf("no %s tiles on %s, using map center", method, m)
		return host.Coord{X: grid.Width / 2, Y: grid.Height / 2}
	}
	return matches[n.rng.Intn(len(matches))]
}

func (n *Navigator) stepDirect(f Frame) StepResult {
	if n.moveInFlight {
		switch n.mover.MoveState() {
		case host.MoveActive:
			return StepWorking
		case host.MoveArrived:
			// Judge where we ended up against the next frame's report,
			// not this one's: the transition may not have landed yet.
			n.moveInFlight = false
			n.phase = phaseAssess
			return StepWorking
		default:
			n.moveInFlight = false
			return StepWorking
		}
	}
	if n.directAttempts >= n.budgets.DirectMoveAttempts {
		n.phase = phaseWarpPick
		return StepWorking
	}
	n.directAttempts++
	if err := n.mover.MoveTo(n.target.Map, *n.target.Dest, host.MoveOptions{
		Tolerance:       n.budgets.RefineTolerance,
		AvoidEncounters: true,
	}); err != nil {
		n.logf("direct move %d/%d failed to start: %v", n.directAttempts, n.budgets.DirectMoveAttempts, err)
		return StepWorking
	}
	n.moveInFlight = true
	return StepWorking
}

// stepWarpPick ranks the current map's warps and selects candidates:
// direct warps to the target map by nearest Manhattan distance first,
// then intermediate hops that strictly reduce forward distance on the
// route, excluding the map just departed.
func (n *Navigator) stepWarpPick(f Frame) StepResult {
	if n.warpCycles >= n.budgets.WarpCycles {
		n.logf("warp budget exhausted after %d cycles, proceeding anyway toward %s", n.warpCycles, n.target.Map)
		n.phase = phaseRefine
		return StepWorking
	}
	warps, ok := n.data.CurrentWarps()
	if !ok || len(warps) == 0 {
		n.logf("no warps on %s and direct movement failed, abandoning %s", f.Map, n.target.ID)
		n.abort()
		return StepAborted
	}
	n.candidates = rankWarps(warps, f.Map, f.Coord, n.target.Map, n.departedMap, n.order)
	if len(n.candidates) > n.budgets.WarpCandidates {
		n.candidates = n.candidates[:n.budgets.WarpCandidates]
	}
	if len(n.candidates) == 0 {
		n.logf("no warp on %s reduces distance toward %s, abandoning %s", f.Map, n.target.Map, n.target.ID)
		n.abort()
		return StepAborted
	}
	n.candidateIdx = 0
	n.warpCycles++
	n.phase = phaseWarpApproach
	return StepWorking
}

// stepWarpApproach walks to an orthogonal neighbor of the warp tile
// before stepping onto it, so the final step is a single deliberate move.
func (n *Navigator) stepWarpApproach(f Frame) StepResult {
	w := n.candidates[n.candidateIdx]
	if n.moveInFlight {
		switch n.mover.MoveState() {
		case host.MoveActive:
			return StepWorking
		case host.MoveArrived:
			n.moveInFlight = false
			n.phase = phaseWarpStep
			return StepWorking
		default:
			n.moveInFlight = false
			return n.nextCandidate()
		}
	}
	neighbor := n.closestNeighbor(f.Map, w.Local, f.Coord)
	if err := n.mover.MoveTo(f.Map, neighbor, host.MoveOptions{}); err != nil {
		n.logf("approach to warp %v failed to start: %v", w.Local, err)
		return n.nextCandidate()
	}
	n.moveInFlight = true
	return StepWorking
}

func (n *Navigator) stepWarpStep(f Frame) StepResult {
	w := n.candidates[n.candidateIdx]
	if n.moveInFlight {
		if f.Map != n.preWarpMap {
			// The warp fired mid-move.
			n.moveInFlight = false
			n.phase = phaseWarpWait
			return StepWorking
		}
		switch n.mover.MoveState() {
		case host.MoveActive:
			return StepWorking
		case host.MoveArrived:
			n.moveInFlight = false
			n.phase = phaseWarpWait
			return StepWorking
		default:
			n.moveInFlight = false
			return n.nextCandidate()
		}
	}
	n.preWarpMap = f.Map
	n.waitFrames = 0
	if err := n.mover.MoveTo(f.Map, w.Local, host.MoveOptions{}); err != nil {
		n.logf("step onto warp %v failed to start: %v", w.Local, err)
		return n.nextCandidate()
	}
	n.moveInFlight = true
	return StepWorking
}

// stepWarpWait waits (bounded frames) for the reported map to change
// after stepping onto a warp tile.
func (n *Navigator) stepWarpWait(f Frame) StepResult {
	if f.Map != n.preWarpMap && f.Map.Valid() {
		n.departedMap = n.preWarpMap
		n.preWarpMap = host.UnknownMap
		n.waitFrames = 0
		if n.standingOnWarp(f.Coord) {
			n.phase = phaseStepOff
		} else {
			n.afterMapChange(f)
		}
		return StepWorking
	}
	n.waitFrames++
	if n.waitFrames > n.budgets.MapChangeWaitFrames {
		n.logf("map did not change within %d frames after warp step", n.budgets.MapChangeWaitFrames)
		n.waitFrames = 0
		return n.nextCandidate()
	}
	return StepWorking
}

// stepStepOff takes one step off a warp tile the player landed on, to
// avoid an immediate bounce back through it.
func (n *Navigator) stepStepOff(f Frame) StepResult {
	if n.moveInFlight {
		if n.mover.MoveState() == host.MoveActive {
			return StepWorking
		}
		n.moveInFlight = false
		n.afterMapChange(f)
		return StepWorking
	}
	dest := f.Coord
	for _, c := range host.OrthogonalNeighbors(f.Coord) {
		if !n.standingOnWarp(c) && n.walkable(f.Map, c) {
			dest = c
			break
		}
	}
	if dest == f.Coord {
		n.afterMapChange(f)
		return StepWorking
	}
	if err := n.mover.MoveTo(f.Map, dest, host.MoveOptions{}); err != nil {
		n.afterMapChange(f)
		return StepWorking
	}
	n.moveInFlight = true
	return StepWorking
}

// afterMapChange decides what follows a completed warp transition.
func (n *Navigator) afterMapChange(f Frame) {
	if f.Map == n.target.Map {
		n.phase = phaseRefine
		return
	}
	n.directAttempts = 0
	n.phase = phaseDirect
}

// stepRefine converges on the memoized destination tile within the
// Manhattan tolerance, bounded attempts.
func (n *Navigator) stepRefine(f Frame) StepResult {
	if f.Map == n.target.Map && host.Manhattan(f.Coord, *n.target.Dest) <= n.budgets.RefineTolerance {
		n.nudgeFrom = f.Coord
		n.phase = phaseNudgeOut
		return StepWorking
	}
	if n.moveInFlight {
		if n.mover.MoveState() == host.MoveActive {
			return StepWorking
		}
		n.moveInFlight = false
		return StepWorking
	}
	if n.refineAttempts >= n.budgets.RefineAttempts {
		n.logf("refinement budget exhausted at %v (want %v), proceeding anyway", f.Coord, *n.target.Dest)
		n.nudgeFrom = f.Coord
		n.phase = phaseNudgeOut
		return StepWorking
	}
	n.refineAttempts++
	if err := n.mover.MoveTo(n.target.Map, *n.target.Dest, host.MoveOptions{Tolerance: n.budgets.RefineTolerance}); err != nil {
		n.logf("refine move %d/%d failed to start: %v", n.refineAttempts, n.budgets.RefineAttempts, err)
	} else {
		n.moveInFlight = true
	}
	return StepWorking
}

// stepNudge takes one tile away from the arrival spot; stepNudgeBack
// returns, resets held inputs, and releases control.
func (n *Navigator) stepNudge(f Frame, next phase) StepResult {
	if n.moveInFlight {
		if n.mover.MoveState() == host.MoveActive {
			return StepWorking
		}
		n.moveInFlight = false
		n.phase = next
		return StepWorking
	}
	dest := n.nudgeFrom
	for _, c := range host.OrthogonalNeighbors(n.nudgeFrom) {
		if n.walkable(f.Map, c) {
			dest = c
			break
		}
	}
	if dest == n.nudgeFrom {
		n.phase = next
		return StepWorking
	}
	if err := n.mover.MoveTo(f.Map, dest, host.MoveOptions{}); err != nil {
		n.phase = next
		return StepWorking
	}
	n.moveInFlight = true
	return StepWorking
}

func (n *Navigator) stepNudgeBack(f Frame) StepResult {
	if n.moveInFlight {
		if n.mover.MoveState() == host.MoveActive {
			return StepWorking
		}
		n.moveInFlight = false
	} else if f.Coord != n.nudgeFrom {
		if err := n.mover.MoveTo(f.Map, n.nudgeFrom, host.MoveOptions{}); err == nil {
			n.moveInFlight = true
			return StepWorking
		}
	}
	n.logf("arrived %s at %s %v", n.target.ID, n.target.Map, *n.target.Dest)
	n.input.ResetHeldInputs()
	n.clear()
	return StepArrived
}

// nextCandidate moves on to the next warp candidate, or starts a fresh
// pick cycle when this batch is exhausted.
func (n *Navigator) nextCandidate() StepResult {
	n.candidateIdx++
	if n.candidateIdx < len(n.candidates) {
		n.phase = phaseWarpApproach
		return StepWorking
	}
	n.phase = phaseWarpPick
	return StepWorking
}

// closestNeighbor picks the orthogonal neighbor of tile nearest to the
// player, preferring walkable tiles when terrain data is available.
func (n *Navigator) closestNeighbor(m host.MapID, tile, player host.Coord) host.Coord {
	best := tile
	bestDist := -1
	for _, c := range host.OrthogonalNeighbors(tile) {
		if !n.walkable(m, c) {
			continue
		}
		if d := host.Manhattan(c, player); bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func (n *Navigator) standingOnWarp(c host.Coord) bool {
	warps, ok := n.data.CurrentWarps()
	if !ok {
		return false
	}
	for _, w := range warps {
		if w.Local == c {
			return true
		}
	}
	return false
}

func (n *Navigator) walkable(m host.MapID, c host.Coord) bool {
	t, ok := n.data.TerrainAt(m, c)
	if !ok {
		return true
	}
	return t != host.TerrainBlocked && t != host.TerrainNone
}

func (n *Navigator) abort() {
	n.mover.CancelMove()
	n.input.ResetHeldInputs()
	n.clear()
}

func (n *Navigator) clear() {
	n.target = nil
	n.phase = phasePickDest
	n.resetCounters()
	n.departedMap = host.UnknownMap
	n.preWarpMap = host.UnknownMap
}

func (n *Navigator) resetCounters() {
	n.moveInFlight = false
	n.directAttempts = 0
	n.refineAttempts = 0
	n.dialogPresses = 0
	n.warpCycles = 0
	n.waitFrames = 0
	n.candidates = nil
	n.candidateIdx = 0
}

func (n *Navigator) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

// rankWarps orders warp candidates: direct warps to the target map by
// nearest Manhattan distance, then intermediate hops whose forward
// distance toward the target is strictly smaller than the current one,
// nearest forward distance first. The departed map is excluded.
func rankWarps(warps []host.Warp, current host.MapID, player host.Coord, target, departed host.MapID, order *route.Order) []host.Warp {
	targetIdx, ok := order.IndexOf(target)
	if !ok {
		return nil
	}
	currentFD := -1
	if ci, ok := order.IndexOf(current); ok {
		currentFD = order.ForwardDistance(ci, targetIdx)
	}

	var direct, hops []host.Warp
	hopFD := map[host.MapID]int{}
	for _, w := range warps {
		switch {
		case w.Dest == target:
			direct = append(direct, w)
		case w.Dest == departed || w.Dest == current || !w.Dest.Valid():
			continue
		default:
			di, ok := order.IndexOf(w.Dest)
			if !ok {
				continue
			}
			fd := order.ForwardDistance(di, targetIdx)
			if currentFD >= 0 && fd >= currentFD {
				continue
			}
			hopFD[w.Dest] = fd
			hops = append(hops, w)
		}
	}
	sort.SliceStable(direct, func(i, j int) bool {
		return host.Manhattan(direct[i].Local, player) < host.Manhattan(direct[j].Local, player)
	})
	sort.SliceStable(hops, func(i, j int) bool {
		if hopFD[hops[i].Dest] != hopFD[hops[j].Dest] {
			return hopFD[hops[i].Dest] < hopFD[hops[j].Dest]
		}
		return host.Manhattan(hops[i].Local, player) < host.Manhattan(hops[j].Local, player)
	})
	return append(direct, hops...)
}
