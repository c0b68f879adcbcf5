// Package scorer ranks candidate items against a QueryAnalysis. Every
// subscore is bounded; the total is a weighted sum. Malformed input never
// fails: it scores zero.
package scorer

import (
	"sort"
	"strings"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/analyzer"
)

// ItemFeatures are the derived features of one candidate. Every field is
// optional; the scorer tolerates absence uniformly.
type ItemFeatures struct {
	FileName   string          `json:"file_name,omitempty"`
	Category   string          `json:"category,omitempty"`
	Language   string          `json:"language,omitempty"`
	Extension  string          `json:"extension,omitempty"`
	Words      []string        `json:"words,omitempty"`
	Functions  []string        `json:"functions,omitempty"`
	Classes    []string        `json:"classes,omitempty"`
	Features   map[string]bool `json:"features,omitempty"`
	Modified   time.Time       `json:"modified,omitempty"`
	Importance int             `json:"importance"` // 0..10 integer scale
}

// Item pairs an id with its features.
type Item struct {
	ID       int64
	Features *ItemFeatures
}

// Breakdown carries every subscore for explanation and testing.
type Breakdown struct {
	ExplicitMatch         float64 `json:"explicitMatch"`
	ContentMatch          float64 `json:"contentMatch"`
	IntentMatch           float64 `json:"intentMatch"`
	StructureMatch        float64 `json:"structureMatch"`
	RecentActivity        float64 `json:"recentActivity"`
	UserPreference        float64 `json:"userPreference"`
	Importance            float64 `json:"importance"`
	ConversationRelevance float64 `json:"conversationRelevance"`
	QueryTypeMatch        float64 `json:"queryTypeMatch"`
	TemporalRelevance     float64 `json:"temporalRelevance"`
}

// ScoredItem is one ranked result.
type ScoredItem struct {
	ID        int64     `json:"id"`
	Total     float64   `json:"total"`
	Breakdown Breakdown `json:"breakdown"`
	Reasoning string    `json:"reasoning"`
}

// Options tunes a scoring pass.
type Options struct {
	MaxResults          int
	MinImportance       int // items below are excluded before scoring
	PreferredExtensions []string
	Now                 time.Time // zero means time.Now()
}

// Subscore caps. The weights below are ordering-sensitive: explicit
// filename beats pure keyword match, recent conversational mention beats
// stale importance.
const (
	capExplicit     = 15.0
	capContent      = 20.0
	capIntent       = 15.0
	capStructure    = 18.0
	capConversation = 20.0
)

// Weights applied to each subscore in the total.
const (
	weightExplicit     = 3.0
	weightContent      = 2.0
	weightConversation = 2.5
	weightStructure    = 1.8
	weightIntent       = 1.5
	weightQueryType    = 1.4
	weightTemporal     = 1.3
	weightRecent       = 1.2
	weightPreference   = 0.8
	weightImportance   = 1.0
)

// Score ranks items against the analysis and returns the top MaxResults.
// An empty item list yields an empty slice; a nil analysis scores every
// item zero. Neither is an error.
func Score(a *analyzer.QueryAnalysis, items []Item, opts Options) []ScoredItem {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		if item.Features != nil && item.Features.Importance < opts.MinImportance {
			continue
		}
		scored = append(scored, ScoreItem(a, item, opts.PreferredExtensions, now))
	}

	// Stable sort: callers pass candidates newest-first, so equal totals
	// keep created_at desc order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Total > scored[j].Total
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored
}

// ScoreItem scores a single candidate. Malformed input (nil analysis or
// features) returns a zero-score record; scoring never fails.
func ScoreItem(a *analyzer.QueryAnalysis, item Item, preferredExts []string, now time.Time) ScoredItem {
	result := ScoredItem{ID: item.ID, Reasoning: "no signals"}
	if a == nil || item.Features == nil {
		return result
	}
	f := item.Features
	b := &result.Breakdown

	b.ExplicitMatch = scoreExplicit(a, f)
	b.ContentMatch = scoreContent(a, f)
	b.IntentMatch = scoreIntent(a, f)
	b.StructureMatch = scoreStructure(a, f)
	b.RecentActivity = scoreRecentActivity(f, now)
	b.UserPreference = scorePreference(f, preferredExts)
	b.Importance = float64(f.Importance) * 0.1
	b.ConversationRelevance = scoreConversation(a, f)
	b.QueryTypeMatch = scoreQueryType(a, f)
	b.TemporalRelevance = scoreTemporal(a, f, now)

	result.Total = b.ExplicitMatch*weightExplicit +
		b.ContentMatch*weightContent +
		b.ConversationRelevance*weightConversation +
		b.StructureMatch*weightStructure +
		b.IntentMatch*weightIntent +
		b.QueryTypeMatch*weightQueryType +
		b.TemporalRelevance*weightTemporal +
		b.RecentActivity*weightRecent +
		b.UserPreference*weightPreference +
		b.Importance*weightImportance

	result.Reasoning = reasoning(b)
	return result
}

// scoreExplicit: filename or path contains an explicitly mentioned file.
func scoreExplicit(a *analyzer.QueryAnalysis, f *ItemFeatures) float64 {
	if f.FileName == "" {
		return 0
	}
	name := strings.ToLower(f.FileName)
	var score float64
	for _, file := range a.ExplicitFiles {
		if name == file {
			score += capExplicit
		} else if strings.Contains(name, strings.TrimSuffix(file, "."+extOf(file))) {
			score += 8
		}
	}
	return capAt(score, capExplicit)
}

// scoreContent: token-set intersection with query keywords; partial
// substring matches count half.
func scoreContent(a *analyzer.QueryAnalysis, f *ItemFeatures) float64 {
	if len(f.Words) == 0 || len(a.Keywords) == 0 {
		return 0
	}
	words := make(map[string]bool, len(f.Words))
	for _, w := range f.Words {
		words[strings.ToLower(w)] = true
	}

	var score float64
	for _, kw := range a.Keywords {
		if words[kw] {
			score += 2
			continue
		}
		for w := range words {
			if len(kw) >= 4 && (strings.Contains(w, kw) || strings.Contains(kw, w)) {
				score += 1
				break
			}
		}
	}
	return capAt(score, capContent)
}

// scoreIntent: per-intent category and feature-flag bonuses.
func scoreIntent(a *analyzer.QueryAnalysis, f *ItemFeatures) float64 {
	var score float64
	for _, intent := range a.Intents {
		switch intent {
		case analyzer.IntentConfig:
			if f.Category == "config" || f.Extension == "env" || f.Extension == "json" || f.Extension == "yml" || f.Extension == "yaml" {
				score += 5
			}
		case analyzer.IntentTest:
			if f.Features["test_file"] {
				score += 4
			}
		case analyzer.IntentError:
			if f.Features["has_debug_output"] {
				score += 3
			}
		case analyzer.IntentDatabase:
			if f.Category == "database" || f.Extension == "sql" {
				score += 4
			}
		case analyzer.IntentAPI:
			if f.Features["express_server"] || f.Category == "api" {
				score += 4
			}
		case analyzer.IntentDocumentation:
			if f.Category == "docs" || f.Extension == "md" {
				score += 4
			}
		case analyzer.IntentAuth:
			if f.Category == "auth" {
				score += 4
			}
		case analyzer.IntentUI:
			if f.Category == "ui" || f.Extension == "css" || f.Extension == "html" {
				score += 3
			}
		}
	}
	return capAt(score, capIntent)
}

// scoreStructure: a known function or class name contains a mentioned
// identifier.
func scoreStructure(a *analyzer.QueryAnalysis, f *ItemFeatures) float64 {
	var score float64
	for _, want := range a.Functions {
		for _, have := range f.Functions {
			if strings.Contains(strings.ToLower(have), want) {
				score += 6
				break
			}
		}
	}
	for _, want := range a.Classes {
		lw := strings.ToLower(want)
		for _, have := range f.Classes {
			if strings.Contains(strings.ToLower(have), lw) {
				score += 6
				break
			}
		}
	}
	return capAt(score, capStructure)
}

func scoreRecentActivity(f *ItemFeatures, now time.Time) float64 {
	if f.Modified.IsZero() {
		return 0
	}
	age := now.Sub(f.Modified)
	switch {
	case age < 24*time.Hour:
		return 3
	case age < 72*time.Hour:
		return 2
	case age < 7*24*time.Hour:
		return 1
	}
	return 0
}

func scorePreference(f *ItemFeatures, preferredExts []string) float64 {
	var score float64
	for _, ext := range preferredExts {
		if f.Extension == strings.ToLower(strings.TrimPrefix(ext, ".")) {
			score += 2
			break
		}
	}
	if f.Importance >= 8 {
		score += 1
	}
	return score
}

// scoreConversation: recently mentioned files, topic overlap, code-element
// overlap, and error context for code files.
func scoreConversation(a *analyzer.QueryAnalysis, f *ItemFeatures) float64 {
	var score float64

	if f.FileName != "" {
		name := strings.ToLower(f.FileName)
		for _, m := range a.RecentlyMentionedFiles {
			if name == m.Filename || strings.Contains(name, m.Filename) {
				score += 8 + 2*float64(m.Mentions-1)
				break
			}
		}
	}

	if len(f.Words) > 0 {
		words := make(map[string]bool, len(f.Words))
		for _, w := range f.Words {
			words[strings.ToLower(w)] = true
		}
		for _, topic := range a.ConversationContext.Topics {
			if words[topic] {
				score += 1
			}
		}
	}

	for _, elem := range a.ConversationContext.CodeElements {
		le := strings.ToLower(elem)
		for _, have := range f.Functions {
			if strings.Contains(strings.ToLower(have), le) {
				score += 4
				break
			}
		}
		for _, have := range f.Classes {
			if strings.Contains(strings.ToLower(have), le) {
				score += 4
				break
			}
		}
	}

	if a.ConversationContext.HasErrors && f.Category == "code" {
		score += 3
	}

	return capAt(score, capConversation)
}

// scoreQueryType: category-level bonus steering by query type.
func scoreQueryType(a *analyzer.QueryAnalysis, f *ItemFeatures) float64 {
	switch a.QueryType {
	case analyzer.TypeTesting:
		if f.Features["test_file"] {
			return 5
		}
	case analyzer.TypeConfiguration:
		if f.Category == "config" || f.Extension == "env" || f.Extension == "json" || f.Extension == "yml" || f.Extension == "yaml" {
			return 5
		}
	case analyzer.TypeDocumentation:
		if f.Category == "docs" || f.Extension == "md" {
			return 5
		}
	case analyzer.TypeDebugging:
		if f.Features["has_debug_output"] {
			return 4
		}
		if f.Category == "code" {
			return 2
		}
	case analyzer.TypeDevelopment:
		if f.Category == "code" && f.Importance >= 5 {
			return 4
		}
	case analyzer.TypeCodeSpecific:
		if f.Category == "code" {
			return 3
		}
	case analyzer.TypeFileSpecific:
		if f.FileName != "" {
			return 2
		}
	}
	return 0
}

// scoreTemporal: recency of conversational mention plus modified-time
// bonuses.
func scoreTemporal(a *analyzer.QueryAnalysis, f *ItemFeatures, now time.Time) float64 {
	var score float64

	if f.FileName != "" {
		name := strings.ToLower(f.FileName)
		for _, m := range a.RecentlyMentionedFiles {
			if name == m.Filename || strings.Contains(name, m.Filename) {
				if v := 6 - float64(m.LastMentionIndex); v > 0 {
					score += v
				}
				break
			}
		}
	}

	if !f.Modified.IsZero() {
		age := now.Sub(f.Modified)
		switch {
		case age < 24*time.Hour:
			score += 2
		case age < 72*time.Hour:
			score += 1
		}
	}
	return score
}

// reasoning names the subscores that crossed their display thresholds.
func reasoning(b *Breakdown) string {
	var parts []string
	if b.ExplicitMatch >= 8 {
		parts = append(parts, "explicitly mentioned file")
	}
	if b.ConversationRelevance >= 8 {
		parts = append(parts, "active in recent conversation")
	}
	if b.StructureMatch >= 6 {
		parts = append(parts, "matches referenced code")
	}
	if b.ContentMatch >= 6 {
		parts = append(parts, "strong keyword overlap")
	} else if b.ContentMatch >= 2 {
		parts = append(parts, "keyword overlap")
	}
	if b.IntentMatch >= 4 {
		parts = append(parts, "fits query intent")
	}
	if b.QueryTypeMatch >= 4 {
		parts = append(parts, "fits query type")
	}
	if b.RecentActivity >= 2 {
		parts = append(parts, "recently modified")
	}
	if len(parts) == 0 {
		return "weak match"
	}
	return strings.Join(parts, "; ")
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		return strings.ToLower(name[i+1:])
	}
	return ""
}
