package mlir

import "fmt"

// CheckBinaryInt verifies an integer op with two operands and one result of
// the same type.
func CheckBinaryInt(op *Operation) error {
	if err := CheckCounts(op, 2, 1, 0); err != nil {
		return err
	}
	t := op.Results[0].Type()
	if _, ok := IntWidth(t); !ok {
		return fmt.Errorf("result must be an integer, got %s", t)
	}
	for i, v := range op.Operands {
		if !TypeEqual(v.Type(), t) {
			return fmt.Errorf("operand #%d has type %s, want %s", i, v.Type(), t)
		}
	}
	return nil
}

// CheckIntCast verifies a one-operand integer width change. widen selects
// extension (result wider) or truncation (result narrower).
func CheckIntCast(op *Operation, widen bool) error {
	if err := CheckCounts(op, 1, 1, 0); err != nil {
		return err
	}
	from, ok := IntWidth(op.Operands[0].Type())
	if !ok {
		return fmt.Errorf("operand must be an integer, got %s", op.Operands[0].Type())
	}
	to, ok := IntWidth(op.Results[0].Type())
	if !ok {
		return fmt.Errorf("result must be an integer, got %s", op.Results[0].Type())
	}
	if widen && to <= from {
		return fmt.Errorf("result width %d must exceed operand width %d", to, from)
	}
	if !widen && to >= from {
		return fmt.Errorf("result width %d must be below operand width %d", to, from)
	}
	return nil
}

// CheckCompare verifies an integer comparison producing i1.
func CheckCompare(op *Operation, maxPredicate int64) error {
	if err := CheckCounts(op, 2, 1, 0); err != nil {
		return err
	}
	if !TypeEqual(op.Operands[0].Type(), op.Operands[1].Type()) {
		return fmt.Errorf("operands have different types %s and %s", op.Operands[0].Type(), op.Operands[1].Type())
	}
	if !TypeEqual(op.Results[0].Type(), I1) {
		return fmt.Errorf("result must be i1, got %s", op.Results[0].Type())
	}
	pred, err := IntegerAttrOf(op, "predicate")
	if err != nil {
		return err
	}
	if p := pred.Int64(); p < 0 || p > maxPredicate {
		return fmt.Errorf("invalid predicate %d", p)
	}
	return nil
}

// CheckSelect verifies select(cond: i1, a: T, b: T) -> T.
func CheckSelect(op *Operation) error {
	if err := CheckCounts(op, 3, 1, 0); err != nil {
		return err
	}
	if !TypeEqual(op.Operands[0].Type(), I1) {
		return fmt.Errorf("condition must be i1, got %s", op.Operands[0].Type())
	}
	t := op.Results[0].Type()
	if !TypeEqual(op.Operands[1].Type(), t) || !TypeEqual(op.Operands[2].Type(), t) {
		return fmt.Errorf("branches must have the result type %s", t)
	}
	return nil
}

// CheckConstant verifies a nullary op whose "value" attribute matches the
// result type.
func CheckConstant(op *Operation) error {
	if err := CheckCounts(op, 0, 1, 0); err != nil {
		return err
	}
	v, err := IntegerAttrOf(op, "value")
	if err != nil {
		return err
	}
	if !TypeEqual(v.Type, op.Results[0].Type()) {
		return fmt.Errorf("value type %s does not match result type %s", v.Type, op.Results[0].Type())
	}
	return nil
}

// CheckCondBranch verifies a two-way branch on an i1 condition.
func CheckCondBranch(op *Operation) error {
	if err := CheckCounts(op, 1, 0, 2); err != nil {
		return err
	}
	if !TypeEqual(op.Operands[0].Type(), I1) {
		return fmt.Errorf("condition must be i1, got %s", op.Operands[0].Type())
	}
	return nil
}

// CheckSwitch verifies a multi-way branch: the first successor is the
// default, the rest pair with "case_values".
func CheckSwitch(op *Operation) error {
	if err := CheckCounts(op, 1, 0, -1); err != nil {
		return err
	}
	if _, ok := IntWidth(op.Operands[0].Type()); !ok {
		return fmt.Errorf("flag must be an integer, got %s", op.Operands[0].Type())
	}
	if len(op.Successors) == 0 {
		return fmt.Errorf("requires a default successor")
	}
	cases, err := DenseI64Of(op, "case_values")
	if err != nil {
		return err
	}
	if len(cases) != len(op.Successors)-1 {
		return fmt.Errorf("has %d case values for %d case successors", len(cases), len(op.Successors)-1)
	}
	seen := make(map[int64]bool, len(cases))
	for _, c := range cases {
		if seen[c] {
			return fmt.Errorf("duplicate case value %d", c)
		}
		seen[c] = true
	}
	return nil
}
