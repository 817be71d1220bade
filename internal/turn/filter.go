package turn

// FilterComplete returns the subsequence of turns safe to send to a
// provider: every assistant turn carrying tool calls is included only
// together with all of its matching tool results, and orphaned tool
// results are dropped. Providers reject histories where a tool_use has
// no paired result, so incomplete groups are removed wholesale rather
// than partially.
func FilterComplete(turns []Turn) []Turn {
	filtered := make([]Turn, 0, len(turns))
	i := 0
	for i < len(turns) {
		t := turns[i]
		switch {
		case t.Kind == Assistant && len(t.ToolCalls) > 0:
			results, next := collectResults(turns, i)
			if len(results) == len(t.ToolCalls) {
				filtered = append(filtered, t)
				filtered = append(filtered, results...)
			}
			i = next
		case t.Kind == ToolResult:
			// Orphaned result: its assistant turn was dropped above.
			i++
		default:
			filtered = append(filtered, t)
			i++
		}
	}
	return filtered
}

// collectResults gathers the tool-result turns that satisfy the tool calls
// of the assistant turn at index i. It stops at the first non-tool-result
// turn. Returns the matched results and the index of the first turn after
// the group (matched or not).
func collectResults(turns []Turn, i int) ([]Turn, int) {
	wanted := make(map[string]bool, len(turns[i].ToolCalls))
	for _, c := range turns[i].ToolCalls {
		wanted[c.ID] = true
	}

	var results []Turn
	j := i + 1
	for j < len(turns) && len(results) < len(wanted) {
		next := turns[j]
		if next.Kind != ToolResult {
			break
		}
		if wanted[next.ToolCallID] {
			results = append(results, next)
			delete(wanted, next.ToolCallID)
		}
		j++
	}
	return results, j
}

// PendingCalls returns the tool calls of the last assistant turn that have
// no matching tool result yet. An empty result means the conversation is
// balanced and the next step is a plain generation or termination.
func PendingCalls(turns []Turn) []ToolCall {
	last := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Kind == Assistant {
			last = i
			break
		}
	}
	if last < 0 || len(turns[last].ToolCalls) == 0 {
		return nil
	}

	resolved := make(map[string]bool)
	for _, t := range turns[last+1:] {
		if t.Kind == ToolResult {
			resolved[t.ToolCallID] = true
		}
	}

	var pending []ToolCall
	for _, c := range turns[last].ToolCalls {
		if !resolved[c.ID] {
			pending = append(pending, c)
		}
	}
	return pending
}

// LastHuman returns the most recent human turn, or a zero Turn and false
// when the history has none.
func LastHuman(turns []Turn) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Kind == Human {
			return turns[i], true
		}
	}
	return Turn{}, false
}
