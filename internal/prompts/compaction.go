package prompts

import "fmt"

// compactionTemplate is the prompt sent to an LLM to summarize conversation
// history during compaction. The single format verb is the rendered
// transcript of the turns being folded away.
const compactionTemplate = `Please summarize this conversation between a user and a food management assistant.

The assistant helps users manage their food inventory, track expiration dates, and find recipes.

Focus on:
1. Key information about the user's food inventory
2. Any expiring or expired products discussed
3. Recipe suggestions or meal planning discussed
4. User preferences or dietary needs mentioned

Keep the summary concise. Use bullet points.

Recent conversation:
%s

Summary:`

// compactionExtendTemplate is used when a summary already exists: the model
// folds the new turns into it and returns a single replacement summary.
// The two format verbs are the prior summary and the new transcript.
const compactionExtendTemplate = `This is a summary of the conversation to date: %s

Recent conversation:
%s

Extend the summary by taking into account the new messages above. Return the complete updated summary.`

// CompactionPrompt returns the fully interpolated summarization prompt. The
// caller passes the rendered transcript and the prior rolling summary, which
// may be empty on the first compaction. The model's reply replaces the prior
// summary entirely.
func CompactionPrompt(transcript, priorSummary string) string {
	if priorSummary == "" {
		return fmt.Sprintf(compactionTemplate, transcript)
	}
	return fmt.Sprintf(compactionExtendTemplate, priorSummary, transcript)
}
