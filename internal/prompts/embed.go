// Package prompts provides the LLM prompt templates with override support.
package prompts

import "embed"

//go:embed llm/*.md
var embeddedFS embed.FS
