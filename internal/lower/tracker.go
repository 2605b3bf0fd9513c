package lower

import (
	"sort"
	"strconv"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/sierra"
)

// tracker maps the live variables of the current block to their values.
type tracker struct {
	verifyMoves bool
	live        map[sierra.VarID]mlir.Value
	consumed    map[sierra.VarID]bool
}

func newTracker(verifyMoves bool) *tracker {
	return &tracker{
		verifyMoves: verifyMoves,
		live:        make(map[sierra.VarID]mlir.Value),
		consumed:    make(map[sierra.VarID]bool),
	}
}

func varRef(id sierra.VarID) string { return "[" + strconv.FormatUint(uint64(id), 10) + "]" }

func (t *tracker) bind(id sierra.VarID, v mlir.Value) error {
	if _, ok := t.live[id]; ok && t.verifyMoves {
		return newError(MoveViolation, varRef(id), "variable is redefined while live")
	}
	t.live[id] = v
	delete(t.consumed, id)
	return nil
}

// take consumes the binding of id.
func (t *tracker) take(id sierra.VarID) (mlir.Value, error) {
	v, ok := t.live[id]
	if !ok {
		if t.verifyMoves && t.consumed[id] {
			return nil, newError(MoveViolation, varRef(id), "variable was already consumed")
		}
		return nil, newError(UndefinedVariable, varRef(id), "")
	}
	delete(t.live, id)
	if t.verifyMoves {
		t.consumed[id] = true
	}
	return v, nil
}

func (t *tracker) takeAll(ids []sierra.VarID) ([]mlir.Value, error) {
	out := make([]mlir.Value, len(ids))
	for i, id := range ids {
		v, err := t.take(id)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// reset rebinds the tracker to the arguments of a block.
func (t *tracker) reset(ids []sierra.VarID, vals []mlir.Value) {
	clear(t.live)
	clear(t.consumed)
	for i, id := range ids {
		t.live[id] = vals[i]
	}
}

// env is the live set after binding the outputs of one branch. The tracker
// itself is left untouched.
func (t *tracker) env(outputs []sierra.VarID, vals []mlir.Value) (map[sierra.VarID]mlir.Value, error) {
	env := make(map[sierra.VarID]mlir.Value, len(t.live)+len(outputs))
	for id, v := range t.live {
		env[id] = v
	}
	for i, id := range outputs {
		if _, ok := env[id]; ok && t.verifyMoves {
			return nil, newError(MoveViolation, varRef(id), "variable is redefined while live")
		}
		env[id] = vals[i]
	}
	return env, nil
}

func sortedVars(env map[sierra.VarID]mlir.Value) []sierra.VarID {
	ids := make([]sierra.VarID, 0, len(env))
	for id := range env {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
