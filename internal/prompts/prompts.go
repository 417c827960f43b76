// Package prompts centralizes the LLM prompt templates so they can be
// reviewed and tuned in one place.
package prompts

// SummarySystemPrompt instructs the model how to summarize a commit.
const SummarySystemPrompt = `You are a senior engineer reviewing commit history.
Summarize the intent and impact of the commit below in 2-3 plain sentences.
Mention the area of the codebase touched when the file list makes it obvious.
Do not restate the commit message verbatim and do not speculate beyond the diff.`

// SummaryUserTemplate is the fixed layout for the commit being summarized.
// Placeholders: message, file bullet list, aggregate stats.
const SummaryUserTemplate = `Commit message:
%s

Changed files:
%s
Aggregate: %d file(s) changed, +%d -%d lines`
