package ranker

// Policy holds the acceptance thresholds for one embedding model family.
type Policy struct {
	// PrimaryThreshold accepts a candidate on similarity alone.
	PrimaryThreshold float64 `mapstructure:"primary_threshold" yaml:"primary_threshold"`
	// FallbackThreshold accepts a candidate when lexical overlap corroborates it.
	FallbackThreshold float64 `mapstructure:"fallback_threshold" yaml:"fallback_threshold"`
	LexicalThreshold  float64 `mapstructure:"lexical_threshold" yaml:"lexical_threshold"`

	// Short memories (trimmed content under ShortMemoryLength) need stronger evidence.
	ShortMemoryLength   int     `mapstructure:"short_memory_length" yaml:"short_memory_length"`
	ShortMemoryLexical  float64 `mapstructure:"short_memory_lexical" yaml:"short_memory_lexical"`
	ShortMemorySemantic float64 `mapstructure:"short_memory_semantic" yaml:"short_memory_semantic"`

	// DegenerateLexical decides candidates whose vector collides with the query's.
	DegenerateLexical float64 `mapstructure:"degenerate_lexical" yaml:"degenerate_lexical"`
	// RelaxedLexicalFloor is the minimum overlap in relaxed fallback mode.
	// At 0 any shared word is enough.
	RelaxedLexicalFloor float64 `mapstructure:"relaxed_lexical_floor" yaml:"relaxed_lexical_floor"`
}

// DefaultPolicy returns the thresholds tuned for general-purpose sentence embedders.
func DefaultPolicy() Policy {
	return Policy{
		PrimaryThreshold:    0.60,
		FallbackThreshold:   0.35,
		LexicalThreshold:    0.15,
		ShortMemoryLength:   40,
		ShortMemoryLexical:  0.25,
		ShortMemorySemantic: 0.95,
		DegenerateLexical:   0.20,
		RelaxedLexicalFloor: 0,
	}
}

// Outcome classifies a ranking decision.
type Outcome int

const (
	Accepted Outcome = iota
	// RejectedLexical means the semantic score was plausible but lexical
	// evidence was missing.
	RejectedLexical
	RejectedScore
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedLexical:
		return "rejected_lexical"
	default:
		return "rejected_score"
	}
}

// Reason names the rule that accepted a candidate.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonPrimary     Reason = "primary"
	ReasonFallback    Reason = "fallback"
	ReasonShortMemory Reason = "short_memory"
	ReasonDegenerate  Reason = "degenerate_lexical"
	ReasonRelaxed     Reason = "relaxed"
)

// Verdict is the result of evaluating one candidate.
type Verdict struct {
	Outcome Outcome
	Reason  Reason
}

// Accepted reports whether the verdict admits the candidate.
func (v Verdict) Accepted() bool { return v.Outcome == Accepted }

// Evaluate applies the tiered acceptance rules; the first match wins.
func (p Policy) Evaluate(similarity, overlap float64, short bool) Verdict {
	switch {
	case similarity >= p.PrimaryThreshold:
		return Verdict{Outcome: Accepted, Reason: ReasonPrimary}
	case similarity >= p.FallbackThreshold && overlap >= p.LexicalThreshold:
		return Verdict{Outcome: Accepted, Reason: ReasonFallback}
	case short && (overlap >= p.ShortMemoryLexical || similarity >= p.ShortMemorySemantic):
		return Verdict{Outcome: Accepted, Reason: ReasonShortMemory}
	case similarity >= p.FallbackThreshold:
		return Verdict{Outcome: RejectedLexical}
	default:
		return Verdict{Outcome: RejectedScore}
	}
}

// EvaluateDegenerate decides a candidate on lexical overlap only.
func (p Policy) EvaluateDegenerate(overlap float64) Verdict {
	if overlap >= p.DegenerateLexical {
		return Verdict{Outcome: Accepted, Reason: ReasonDegenerate}
	}
	return Verdict{Outcome: RejectedLexical}
}

// EvaluateRelaxed is the recall-first rule used when nothing else matched.
func (p Policy) EvaluateRelaxed(overlap float64) Verdict {
	if overlap > 0 && overlap >= p.RelaxedLexicalFloor {
		return Verdict{Outcome: Accepted, Reason: ReasonRelaxed}
	}
	return Verdict{Outcome: RejectedLexical}
}

// PolicyTable maps embedding model ids to policies.
type PolicyTable struct {
	Default Policy
	ByModel map[string]Policy
}

// DefaultPolicyTable ships lower thresholds for small on-device models, whose
// similarity scores run compressed compared to larger embedders.
func DefaultPolicyTable() PolicyTable {
	compact := DefaultPolicy()
	compact.PrimaryThreshold = 0.50
	compact.FallbackThreshold = 0.30
	compact.LexicalThreshold = 0.12

	return PolicyTable{
		Default: DefaultPolicy(),
		ByModel: map[string]Policy{
			"all-minilm":    compact,
			"gecko-110m-en": compact,
		},
	}
}

// For returns the policy registered for model, or the default.
func (t PolicyTable) For(model string) Policy {
	if p, ok := t.ByModel[model]; ok {
		return p
	}
	return t.Default
}

// With returns a copy of the table with p registered for model.
func (t PolicyTable) With(model string, p Policy) PolicyTable {
	byModel := make(map[string]Policy, len(t.ByModel)+1)
	for k, v := range t.ByModel {
		byModel[k] = v
	}
	byModel[model] = p
	return PolicyTable{Default: t.Default, ByModel: byModel}
}
