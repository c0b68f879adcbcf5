// Package analyzer turns a free-text user query plus recent conversation
// history into a structured, deterministic QueryAnalysis. Pure functions
// throughout: no clock, no I/O, no randomness.
package analyzer

import (
	"strings"
)

// Analyze produces the full analysis of a query against its history.
func Analyze(query string, history []Message) QueryAnalysis {
	a := QueryAnalysis{
		ExplicitFiles: extractFiles(query),
		Functions:     extractFunctions(query),
		Classes:       extractClasses(query),
		Intents:       extractIntents(query),
		Keywords:      extractKeywords(query),
	}

	a.ConversationContext = buildConversationContext(history)
	a.RecentlyMentionedFiles = recentFileMentions(history)
	a.QueryType = classify(query, &a)
	a.Confidence = confidence(&a)
	return a
}

// extractFiles returns lowercase filenames with recognized extensions plus
// well-known dotfiles, deduplicated. Extension matches come first, then
// dotfiles, each group in order of first appearance.
func extractFiles(text string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, m := range fileExtPattern.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, m := range dotfilePattern.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(m[2])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// extractFunctions returns identifiers suggestive of function references:
// declarations, call sites, "<name> method" phrasing, and the noun->verb map.
func extractFunctions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.ToLower(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, m := range funcDeclPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range methodNamePattern.FindAllStringSubmatch(text, -1) {
		if strings.ToLower(m[1]) != "a" && strings.ToLower(m[1]) != "the" {
			add(m[1])
		}
	}
	for _, m := range methodOfPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range funcCallPattern.FindAllStringSubmatch(text, -1) {
		if !callSiteNoise[strings.ToLower(m[1])] {
			add(m[1])
		}
	}

	lower := strings.ToLower(text)
	for _, noun := range nounToVerbOrder {
		if strings.Contains(lower, noun) {
			add(nounToVerb[noun])
		}
	}
	return out
}

// extractClasses returns identifiers suggestive of class references.
func extractClasses(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, m := range classDeclPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range newClassPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range prototypePattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range pascalCasePattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}

// extractIntents returns the subset of intent labels whose word-class
// pattern matches, in fixed order.
func extractIntents(text string) []string {
	var out []string
	for _, intent := range intentOrder {
		if intentPatterns[intent].MatchString(text) {
			out = append(out, intent)
		}
	}
	return out
}

func hasIntent(intents []string, want string) bool {
	for _, i := range intents {
		if i == want {
			return true
		}
	}
	return false
}

// confidence combines weighted contributions from each signal, capped at 1.
func confidence(a *QueryAnalysis) float64 {
	var c float64

	if n := len(a.ExplicitFiles); n > 0 {
		c += capAt(0.15*float64(n), 0.3)
	}
	if n := len(a.Functions) + len(a.Classes); n > 0 {
		c += capAt(0.1*float64(n), 0.2)
	}
	if len(a.RecentlyMentionedFiles) > 0 {
		c += 0.15
	}
	if n := len(a.Intents); n > 0 {
		c += capAt(0.05*float64(n), 0.15)
	}
	if n := len(a.Keywords); n > 0 {
		c += capAt(0.02*float64(n), 0.1)
	}
	if a.ConversationContext.HasErrors {
		c += 0.05
	}
	if a.ConversationContext.HasTasks {
		c += 0.05
	}

	return capAt(c, 1.0)
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
