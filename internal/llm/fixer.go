package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/prompts"
)

// ErrMalformedFix is returned when the auto-fix reply is not a
// {"files":[{path, content}]} object
var ErrMalformedFix = errors.New("malformed auto-fix reply")

// FixRequest is everything the fixer may look at
type FixRequest struct {
	Framework    domain.Framework
	Prompt       string
	AllowedPaths []string
	CurrentFiles []domain.PlanFile
	BuildOutput  string
}

// FixResponse holds proposed replacement files. Callers must filter them
// against the allowed paths before writing.
type FixResponse struct {
	Files []domain.PlanFile `json:"files"`
}

// Fixer proposes file edits for a failed build
type Fixer interface {
	Fix(ctx context.Context, req FixRequest) (*FixResponse, error)
}

// LLMFixer implements Fixer with a chat completion
type LLMFixer struct {
	client *Client
	loader *prompts.Loader
}

// NewFixer creates a fixer
func NewFixer(client *Client, loader *prompts.Loader) *LLMFixer {
	return &LLMFixer{client: client, loader: loader}
}

// Fix asks the model for replacement contents of the allowed files
func (f *LLMFixer) Fix(ctx context.Context, req FixRequest) (*FixResponse, error) {
	p, err := f.loader.BuildAutofixPrompt(prompts.AutofixData{
		Framework:    string(req.Framework),
		Prompt:       req.Prompt,
		AllowedPaths: req.AllowedPaths,
		CurrentFiles: req.CurrentFiles,
		BuildOutput:  req.BuildOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("building auto-fix prompt: %w", err)
	}

	text, err := f.client.Complete(ctx, []Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}, p.Temperature)
	if err != nil {
		return nil, err
	}

	return parseFixReply(text)
}

func parseFixReply(text string) (*FixResponse, error) {
	// A pointer tells a missing or null files key apart from an empty list
	var reply struct {
		Files *[]domain.PlanFile `json:"files"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFix, err)
	}
	if reply.Files == nil {
		return nil, fmt.Errorf("%w: no files array", ErrMalformedFix)
	}
	for _, f := range *reply.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("%w: file entry without path", ErrMalformedFix)
		}
	}
	return &FixResponse{Files: *reply.Files}, nil
}
