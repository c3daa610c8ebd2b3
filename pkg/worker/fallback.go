package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trip-agent/pkg/capability"
	"trip-agent/pkg/prompts"
)

// FallbackToolName labels the synthetic result of a fallback search.
const FallbackToolName = "fallback_search"

// Search domains used to phrase the fallback query.
const (
	DomainTicketing   = "ticketing"
	DomainLodging     = "lodging"
	DomainWeather     = "weather"
	DomainSightseeing = "sightseeing"
	DomainDining      = "dining"
)

type domainRule struct {
	domain   string
	triggers []string
	// suffix is appended to the query to steer the search engine.
	suffix string
}

// Rules are checked in order; the first rule with a matching trigger wins.
var fallbackRules = []domainRule{
	{
		domain:   DomainTicketing,
		triggers: []string{"ticket", "train", "flight", "airfare", "rail", "票", "火车", "高铁", "航班", "机票"},
		suffix:   "schedule price booking",
	},
	{
		domain:   DomainLodging,
		triggers: []string{"hotel", "hostel", "lodging", "accommodation", "stay", "酒店", "住宿", "民宿", "宾馆"},
		suffix:   "hotel price rating location",
	},
	{
		domain:   DomainWeather,
		triggers: []string{"weather", "forecast", "temperature", "rain", "天气", "气温", "预报"},
		suffix:   "weather forecast",
	},
	{
		domain:   DomainDining,
		triggers: []string{"food", "restaurant", "dining", "eat", "cuisine", "bar", "美食", "餐厅", "小吃", "吃"},
		suffix:   "best local restaurants reviews price",
	},
	{
		domain:   DomainSightseeing,
		triggers: []string{"attraction", "sightseeing", "museum", "park", "tour", "visit", "景点", "门票", "游玩", "博物馆"},
		suffix:   "top attractions opening hours ticket price",
	},
}

// ClassifyDomain maps a task to a fallback search domain. Unknown tasks
// count as sightseeing.
func ClassifyDomain(task string) string {
	lower := strings.ToLower(task)
	for _, rule := range fallbackRules {
		for _, t := range rule.triggers {
			if strings.Contains(lower, t) {
				return rule.domain
			}
		}
	}
	return DomainSightseeing
}

// FallbackQuery builds the single last-resort search query for a task.
func FallbackQuery(task string, trip prompts.Trip, reason string) string {
	domain := ClassifyDomain(task)
	var suffix string
	for _, rule := range fallbackRules {
		if rule.domain == domain {
			suffix = rule.suffix
			break
		}
	}

	parts := []string{}
	if domain == DomainTicketing && trip.Origin != "" {
		parts = append(parts, trip.Origin+" to")
	}
	if trip.Destination != "" {
		parts = append(parts, trip.Destination)
	}
	if trip.Date != "" {
		parts = append(parts, trip.Date)
	}
	parts = append(parts, suffix)
	if r := strings.TrimSpace(reason); r != "" {
		parts = append(parts, r)
	} else {
		parts = append(parts, task)
	}
	return strings.Join(parts, " ")
}

// findSearchCapability returns the first capability whose name mentions
// search, looking through catalogs in order.
func findSearchCapability(catalogs ...*capability.Catalog) (capability.Capability, *capability.Catalog, bool) {
	for _, cat := range catalogs {
		for _, cp := range cat.List() {
			if strings.Contains(strings.ToLower(cp.Name), "search") {
				return cp, cat, true
			}
		}
	}
	return capability.Capability{}, nil, false
}

// queryArgument picks the argument name a search capability takes its query
// under: the first required string property, else "query".
func queryArgument(cp capability.Capability) string {
	props, _ := cp.Parameters["properties"].(map[string]interface{})
	isString := func(name string) bool {
		p, ok := props[name].(map[string]interface{})
		return ok && p["type"] == "string"
	}

	var required []string
	switch req := cp.Parameters["required"].(type) {
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	case []string:
		required = req
	}
	for _, name := range required {
		if isString(name) {
			return name
		}
	}
	for _, name := range []string{"query", "q", "keyword", "keywords", "search_query"} {
		if _, ok := props[name]; ok {
			return name
		}
	}
	return "query"
}

// fallbackSearch runs the single fallback query. Without any search
// capability it still returns a synthetic result explaining why.
func (r *Runner) fallbackSearch(ctx context.Context, in TaskInput, reason string) capability.Result {
	query := FallbackQuery(in.Task, in.Context, reason)

	cp, cat, ok := findSearchCapability(in.Worker.Capabilities, r.searchCatalog)
	if !ok {
		r.logger.Warnf("⚠️ [%s] No search capability for fallback query %q", in.Worker.Name, query)
		return capability.Result{
			CallID:  "fallback_" + uuid.NewString(),
			Name:    FallbackToolName,
			Args:    fmt.Sprintf(`{"query":%q}`, query),
			Content: fmt.Sprintf("Fallback search unavailable: no search capability registered. Query was: %s", query),
		}
	}

	args, _ := json.Marshal(map[string]string{queryArgument(cp): query})
	call := capability.Call{
		ID:   "fallback_" + uuid.NewString(),
		Name: cp.Name,
		Args: string(args),
	}
	r.logger.Infof("🔎 [%s] Fallback search via %s: %s", in.Worker.Name, cp.Name, query)
	results := r.dispatcher.ExecuteCalls(ctx, []capability.Call{call}, cat)
	if len(results) == 0 {
		return capability.Result{CallID: call.ID, Name: cp.Name, Content: capability.FailurePrefix + "no result"}
	}
	return results[0]
}
