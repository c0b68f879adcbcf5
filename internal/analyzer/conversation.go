package analyzer

import (
	"sort"
	"strings"
)

// buildConversationContext summarizes up to the last contextWindow messages.
func buildConversationContext(history []Message) ConversationContext {
	ctx := ConversationContext{
		Topics:         []string{},
		MentionedFiles: []string{},
		CodeElements:   []string{},
		Errors:         []string{},
		Tasks:          []string{},
	}

	window := lastN(history, contextWindow)

	topicSeen := make(map[string]bool)
	fileSeen := make(map[string]bool)
	elemSeen := make(map[string]bool)

	for _, msg := range window {
		for _, kw := range extractKeywords(msg.Content) {
			if len(ctx.Topics) >= maxTopics {
				break
			}
			if !topicSeen[kw] {
				topicSeen[kw] = true
				ctx.Topics = append(ctx.Topics, kw)
			}
		}

		for _, f := range extractFiles(msg.Content) {
			if !fileSeen[f] {
				fileSeen[f] = true
				ctx.MentionedFiles = append(ctx.MentionedFiles, f)
			}
		}

		for _, e := range extractFunctions(msg.Content) {
			if len(ctx.CodeElements) >= maxCodeElements {
				break
			}
			if !elemSeen[e] {
				elemSeen[e] = true
				ctx.CodeElements = append(ctx.CodeElements, e)
			}
		}
		for _, e := range extractClasses(msg.Content) {
			if len(ctx.CodeElements) >= maxCodeElements {
				break
			}
			key := strings.ToLower(e)
			if !elemSeen[key] {
				elemSeen[key] = true
				ctx.CodeElements = append(ctx.CodeElements, e)
			}
		}

		if errorCuePattern.MatchString(msg.Content) {
			ctx.Errors = append(ctx.Errors, excerpt(msg.Content))
		}
		if taskCuePattern.MatchString(msg.Content) {
			ctx.Tasks = append(ctx.Tasks, excerpt(msg.Content))
		}
	}

	ctx.HasErrors = len(ctx.Errors) > 0
	ctx.HasTasks = len(ctx.Tasks) > 0
	return ctx
}

// recentFileMentions scans up to the last recentFilesWindow messages and
// returns each mentioned filename with its mention count and the index of
// its most recent mention (0 = latest message), ordered most recent first,
// capped at maxRecentFiles.
func recentFileMentions(history []Message) []FileMention {
	window := lastN(history, recentFilesWindow)

	byName := make(map[string]*FileMention)
	var order []string

	// Walk newest to oldest so the first sighting fixes LastMentionIndex.
	for back := 0; back < len(window); back++ {
		msg := window[len(window)-1-back]
		for _, f := range extractFiles(msg.Content) {
			m, ok := byName[f]
			if !ok {
				m = &FileMention{Filename: f, LastMentionIndex: back}
				byName[f] = m
				order = append(order, f)
			}
			m.Mentions++
		}
	}

	out := make([]FileMention, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMentionIndex != out[j].LastMentionIndex {
			return out[i].LastMentionIndex < out[j].LastMentionIndex
		}
		return out[i].Mentions > out[j].Mentions
	})

	if len(out) > maxRecentFiles {
		out = out[:maxRecentFiles]
	}
	return out
}

func lastN(history []Message, n int) []Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptLen {
		return text
	}
	return text[:excerptLen]
}
