package workflow

// Policy holds the tunable limits of a session.
type Policy struct {
	// MaxInterventions caps how many questions a session may ask. Zero
	// means unlimited. Once reached, Plan and Replan are told not to ask
	// and a question they still return is dropped.
	MaxInterventions int `json:"max_interventions" mapstructure:"max_interventions"`
	// MaxIterations caps Observe → Plan loops. Zero means unlimited.
	MaxIterations int `json:"max_iterations" mapstructure:"max_iterations"`
	// MaxKeptMessages bounds the conversation before compaction.
	MaxKeptMessages int `json:"max_kept_messages" mapstructure:"max_kept_messages"`
}

// DefaultPolicy returns the limits used when none are configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxInterventions: 0,
		MaxIterations:    3,
		MaxKeptMessages:  40,
	}
}

// AllowQuestion reports whether another question may be asked after count.
func (p Policy) AllowQuestion(count int) bool {
	return p.MaxInterventions <= 0 || count < p.MaxInterventions
}

// IterationsExhausted reports whether another Observe → Plan loop is allowed.
func (p Policy) IterationsExhausted(iteration int) bool {
	return p.MaxIterations > 0 && iteration >= p.MaxIterations
}
