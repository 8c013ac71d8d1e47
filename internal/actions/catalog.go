// Package actions defines the closed catalog of heartbeat actions and the
// executor registry that carries them out.
package actions

// Kind names one admissible action. The set is closed: every kind listed
// here has a fixed cost in the catalog and exactly one executor in the
// registry, and the registry refuses anything else.
type Kind string

const (
	KindRest           Kind = "rest"
	KindObserve        Kind = "observe"
	KindRemember       Kind = "remember"
	KindConnect        Kind = "connect"
	KindReprioritize   Kind = "reprioritize"
	KindReflect        Kind = "reflect"
	KindRecalibrate    Kind = "recalibrate"
	KindInquireShallow Kind = "inquire_shallow"
	KindBrainstorm     Kind = "brainstorm"
	KindSynthesize     Kind = "synthesize"
	KindReachOutUser   Kind = "reach_out_user"
	KindInquireDeep    Kind = "inquire_deep"
)

// Category groups actions by the faculty they exercise.
type Category string

const (
	CategoryFree          Category = "free"
	CategoryRetrieval     Category = "retrieval"
	CategoryMemory        Category = "memory"
	CategoryReasoning     Category = "reasoning"
	CategoryGoals         Category = "goals"
	CategoryCommunication Category = "communication"
	CategoryMeta          Category = "meta"
)

// Spec is the static description of one action kind.
type Spec struct {
	Kind            Kind     `json:"kind"`
	Cost            float64  `json:"cost"`
	Category        Category `json:"category"`
	RequiresOracle  bool     `json:"requires_oracle"`
	RequiresNetwork bool     `json:"requires_network"`
}

// catalog is the single registration point for action specs, ordered by
// cost. Adding a kind means adding a row here and an executor case in
// executorFor; the registry test asserts both stay in sync.
var catalog = []Spec{
	{Kind: KindRest, Cost: 0, Category: CategoryFree},
	{Kind: KindObserve, Cost: 0, Category: CategoryFree},
	{Kind: KindRemember, Cost: 0, Category: CategoryMemory},
	{Kind: KindConnect, Cost: 1, Category: CategoryMemory},
	{Kind: KindReprioritize, Cost: 1, Category: CategoryGoals},
	{Kind: KindReflect, Cost: 2, Category: CategoryReasoning, RequiresOracle: true},
	{Kind: KindRecalibrate, Cost: 2, Category: CategoryMeta, RequiresOracle: true},
	{Kind: KindInquireShallow, Cost: 3, Category: CategoryRetrieval},
	{Kind: KindBrainstorm, Cost: 3, Category: CategoryGoals, RequiresOracle: true},
	{Kind: KindSynthesize, Cost: 4, Category: CategoryReasoning, RequiresOracle: true},
	{Kind: KindReachOutUser, Cost: 5, Category: CategoryCommunication, RequiresNetwork: true},
	{Kind: KindInquireDeep, Cost: 6, Category: CategoryRetrieval, RequiresNetwork: true},
}

var byKind = make(map[Kind]Spec, len(catalog))

func init() {
	for _, s := range catalog {
		byKind[s.Kind] = s
	}
}

// Lookup returns the spec for a kind and whether the kind is known.
func Lookup(kind string) (Spec, bool) {
	s, ok := byKind[Kind(kind)]
	return s, ok
}

// Specs returns the full catalog in cost order, as handed to the Decision
// Oracle inside the context bundle.
func Specs() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Kinds returns every registered kind in catalog order.
func Kinds() []Kind {
	out := make([]Kind, len(catalog))
	for i, s := range catalog {
		out[i] = s.Kind
	}
	return out
}
