// Package worker runs single tasks on specialized workers: a bounded
// invoke/dispatch loop, an independent completion check, guided extra rounds
// and a last-resort fallback search.
package worker

import (
	"trip-agent/pkg/capability"
	"trip-agent/pkg/prompts"
)

// Worker types known to the registry.
const (
	TypeTransport = "transport"
	TypeMap       = "map"
	TypeSearch    = "search"
	TypeFile      = "file"
	TypeWeather   = "weather"
	TypeHotel     = "hotel"
)

// DefaultMaxRounds applies to worker types without an explicit entry.
const DefaultMaxRounds = 3

var maxRoundsByType = map[string]int{
	TypeTransport: 1,
	TypeMap:       2,
	TypeSearch:    2,
	TypeFile:      2,
	TypeWeather:   1,
	TypeHotel:     2,
}

var descriptionByType = map[string]string{
	TypeTransport: "long-distance transport: flights and train tickets",
	TypeMap:       "maps: attractions, routes and nearby facilities",
	TypeSearch:    "web search: attractions, food, prices, reviews and travel guides",
	TypeFile:      "reading and writing local files",
	TypeWeather:   "weather forecasts for the destination",
	TypeHotel:     "hotel and lodging lookups at the destination",
}

// MaxRoundsFor returns the configured round cap for a worker type.
func MaxRoundsFor(workerType string) int {
	if n, ok := maxRoundsByType[workerType]; ok {
		return n
	}
	return DefaultMaxRounds
}

// DescriptionFor returns the built-in description of a worker type.
func DescriptionFor(workerType string) string {
	if d, ok := descriptionByType[workerType]; ok {
		return d
	}
	return "general purpose tasks"
}

// Worker is a named capability set with a domain description. Workers hold
// no state between tasks.
type Worker struct {
	Name         string
	Type         string
	Description  string
	Capabilities *capability.Catalog
	MaxRounds    int
}

// New builds a worker of the given type with the built-in description and
// round cap.
func New(workerType string, caps *capability.Catalog) *Worker {
	return &Worker{
		Name:         workerType,
		Type:         workerType,
		Description:  DescriptionFor(workerType),
		Capabilities: caps,
		MaxRounds:    MaxRoundsFor(workerType),
	}
}

// Option renders the worker as a dispatch candidate.
func (w *Worker) Option() prompts.WorkerOption {
	return prompts.WorkerOption{
		Name:        w.Name,
		Description: w.Description,
		Tools:       w.Capabilities.Names(),
	}
}
