package engine

import "fmt"

// native runs the C library functions a lowered module may declare.
func (e *Engine) native(name string, args []Value) ([]Value, error) {
	switch name {
	case "realloc":
		if len(args) != 2 {
			return nil, fmt.Errorf("realloc takes 2 arguments, got %d", len(args))
		}
		p, ok1 := args[0].(Ptr)
		n, ok2 := args[1].(Int)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("realloc(%s, %s): bad argument types", args[0], args[1])
		}
		size := int(n.V.Int64())
		if size < 1 {
			size = 1
		}
		out, err := e.mem.realloc(p, size)
		if err != nil {
			return nil, err
		}
		return []Value{out}, nil
	case "free":
		if len(args) != 1 {
			return nil, fmt.Errorf("free takes 1 argument, got %d", len(args))
		}
		p, ok := args[0].(Ptr)
		if !ok {
			return nil, fmt.Errorf("free(%s): bad argument type", args[0])
		}
		return nil, e.mem.free(p)
	case "abort":
		return nil, &Panic{Reason: "abort"}
	default:
		return nil, fmt.Errorf("call to unresolved external @%s", name)
	}
}
