package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/prompts"
)

// ErrMalformedPlan is returned when the planner reply is unusable
var ErrMalformedPlan = errors.New("planner returned a malformed plan")

// Planner turns a prompt into a plan. The returned plan has no id yet.
type Planner interface {
	Plan(ctx context.Context, prompt string, framework domain.Framework) (*domain.Plan, error)
}

// LLMPlanner implements Planner with a chat completion
type LLMPlanner struct {
	client *Client
	loader *prompts.Loader
}

// NewPlanner creates a planner
func NewPlanner(client *Client, loader *prompts.Loader) *LLMPlanner {
	return &LLMPlanner{client: client, loader: loader}
}

// Plan asks the model for a framework and file set. framework may be
// empty to let the model choose.
func (p *LLMPlanner) Plan(ctx context.Context, prompt string, framework domain.Framework) (*domain.Plan, error) {
	names := make([]string, len(domain.Frameworks))
	for i, f := range domain.Frameworks {
		names[i] = string(f)
	}

	rendered, err := p.loader.BuildPlanPrompt(prompts.PlanData{
		Prompt:     prompt,
		Framework:  string(framework),
		Frameworks: names,
	})
	if err != nil {
		return nil, fmt.Errorf("building plan prompt: %w", err)
	}

	text, err := p.client.Complete(ctx, []Message{
		{Role: "system", Content: rendered.System},
		{Role: "user", Content: rendered.User},
	}, rendered.Temperature)
	if err != nil {
		return nil, err
	}

	var reply struct {
		Framework string            `json:"framework"`
		Files     []domain.PlanFile `json:"files"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	if reply.Framework == "" {
		reply.Framework = string(framework)
	}
	fw, err := domain.ParseFramework(reply.Framework)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if len(reply.Files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrMalformedPlan)
	}
	for _, f := range reply.Files {
		if f.Path == "" || f.Content == "" {
			return nil, fmt.Errorf("%w: file entry without path or content", ErrMalformedPlan)
		}
	}

	return &domain.Plan{
		Framework: fw,
		Prompt:    prompt,
		Files:     reply.Files,
	}, nil
}
