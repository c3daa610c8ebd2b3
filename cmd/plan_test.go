package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"trip-agent/pkg/session"
	"trip-agent/pkg/workflow"
)

func TestParseAnswer(t *testing.T) {
	choice := &workflow.InterventionRequest{
		QuestionType: workflow.QuestionMultipleChoice,
		Options:      []workflow.Option{{ID: "a", Text: "museums"}, {ID: "b", Text: "food"}},
	}
	tests := []struct {
		name string
		line string
		req  *workflow.InterventionRequest
		want session.HumanResponse
	}{
		{"text question", " next Friday ", &workflow.InterventionRequest{QuestionType: workflow.QuestionText}, session.HumanResponse{Text: "next Friday"}},
		{"no request", "hello", nil, session.HumanResponse{Text: "hello"}},
		{"option ids", "a, b", choice, session.HumanResponse{SelectedOptions: []string{"a", "b"}}},
		{"unknown id is text", "a, shopping", choice, session.HumanResponse{Text: "a, shopping"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAnswer(tt.line, tt.req))
		})
	}
}

func TestPrintState(t *testing.T) {
	state := workflow.NewState("s1", workflow.TripRequest{Destination: "Xi'an"})
	state.Status = workflow.StatusWaitingUser
	state.InterventionRequest = &workflow.InterventionRequest{
		Message:      "Which sights?",
		QuestionType: workflow.QuestionMultipleChoice,
		Options:      []workflow.Option{{ID: "a", Text: "Terracotta Army"}},
		CurrentPlan:  []string{"1. sights"},
	}

	var out bytes.Buffer
	printState(&out, state)
	assert.Contains(t, out.String(), "Session s1: waiting_user")
	assert.Contains(t, out.String(), "❓ Which sights?")
	assert.Contains(t, out.String(), "[a] Terracotta Army")
	assert.Contains(t, out.String(), "1. sights")

	state.Status = workflow.StatusCompleted
	state.AmusementInfo = &workflow.Itinerary{Destination: "Xi'an", Summary: "history"}
	out.Reset()
	printState(&out, state)
	assert.Contains(t, out.String(), `"summary": "history"`)
}
