package workflow

import (
	"strings"

	"trip-agent/internal/utils"
	"trip-agent/pkg/oracle"
)

// Verdict is the outcome of reviewing an itinerary.
type Verdict int

const (
	VerdictNeedsWork Verdict = iota
	VerdictSatisfied
)

func (v Verdict) String() string {
	if v == VerdictSatisfied {
		return "satisfied"
	}
	return "needs_work"
}

var satisfiedWords = map[string]bool{
	"1": true, "satisfied": true, "yes": true, "true": true, "ok": true, "done": true, "满意": true,
}

// Generic critique used when the review gives nothing usable.
const (
	genericMissing    = "the itinerary could not be reviewed"
	genericSuggestion = "re-check transport, lodging and daily schedule against the trip request"
)

// ParseVerdict reads a review reply. A bare satisfied signal ("1", "yes",
// "satisfied" ...) is VerdictSatisfied. A JSON object is read as a critique;
// it only counts as satisfied when it says so and lists nothing missing.
// Anything else is VerdictNeedsWork with the reply kept as a suggestion.
func ParseVerdict(text string) (Verdict, Observation) {
	trimmed := strings.ToLower(strings.Trim(strings.TrimSpace(text), "\"'`.!。 \n"))
	if satisfiedWords[trimmed] {
		return VerdictSatisfied, Observation{Satisfied: true}
	}

	var critique struct {
		Satisfied    *bool      `json:"satisfied"`
		MissingItems stringList `json:"missing_items"`
		Suggestions  stringList `json:"suggestions"`
	}
	if err := oracle.DecodeJSON(text, &critique); err == nil {
		obs := Observation{
			MissingItems: cleanStrings(critique.MissingItems),
			Suggestions:  cleanStrings(critique.Suggestions),
		}
		if critique.Satisfied != nil && *critique.Satisfied && len(obs.MissingItems) == 0 {
			obs.Satisfied = true
			return VerdictSatisfied, obs
		}
		if len(obs.MissingItems) == 0 && len(obs.Suggestions) == 0 {
			obs.Suggestions = []string{genericSuggestion}
		}
		return VerdictNeedsWork, obs
	}

	obs := Observation{Suggestions: []string{genericSuggestion}}
	if trimmed != "" {
		obs.Suggestions = []string{utils.Truncate(strings.TrimSpace(text), 500)}
	}
	return VerdictNeedsWork, obs
}

// unavailableObservation is the critique used when the review call failed.
func unavailableObservation() Observation {
	return Observation{MissingItems: []string{genericMissing}, Suggestions: []string{genericSuggestion}}
}
