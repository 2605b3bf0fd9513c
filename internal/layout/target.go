package layout

// Target is the ABI a module is laid out for.
type Target struct {
	Triple       string
	PointerBytes int
	// MaxIntAlign caps the alignment of wide integers.
	MaxIntAlign int
}

// X86_64LinuxGNU is the default target.
func X86_64LinuxGNU() Target {
	return Target{Triple: "x86_64-linux-gnu", PointerBytes: 8, MaxIntAlign: 16}
}

var triples = map[string]func() Target{
	"":                         X86_64LinuxGNU,
	"x86_64-linux-gnu":         X86_64LinuxGNU,
	"x86_64-unknown-linux-gnu": X86_64LinuxGNU,
}

// TargetByTriple resolves a triple; the empty string selects the default.
func TargetByTriple(triple string) (Target, error) {
	if mk, ok := triples[triple]; ok {
		return mk(), nil
	}
	return Target{}, &Error{Kind: UnknownTarget, Type: triple}
}
