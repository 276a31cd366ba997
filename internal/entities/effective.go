package entities

// SourceContribution records one source's input to a resolution, in the
// order the resolver considered them.
type SourceContribution struct {
	SourceID   string
	SubjectRef string
	Kind       SourceKind
	Priority   int
	Value      Tri
	IsWinner   bool
}

// EffectivePermission is the resolved decision for one action on one
// resource for one subject. Granted is fully determined by the
// contributing sources via the resolution algorithm; it is never set
// independently, so any resolution is reproducible from the same inputs.
type EffectivePermission struct {
	Action          Action
	Granted         bool
	WinningSourceID string // empty when default-denied with no winner
	Contributing    []SourceContribution
	Explanation     string
}
