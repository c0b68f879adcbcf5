package scorer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/analyzer"
	"github.com/Wawtawsha/durandal-mcp/internal/store"
)

func TestScoreItemRobustness(t *testing.T) {
	now := time.Now()

	r := ScoreItem(nil, Item{ID: 1}, nil, now)
	if r.Total != 0 {
		t.Errorf("nil analysis: total = %f, want 0", r.Total)
	}

	a := analyzer.Analyze("anything", nil)
	r = ScoreItem(&a, Item{ID: 2, Features: nil}, nil, now)
	if r.Total != 0 {
		t.Errorf("nil features: total = %f, want 0", r.Total)
	}

	// Empty features must not panic and must score zero-ish.
	r = ScoreItem(&a, Item{ID: 3, Features: &ItemFeatures{}}, nil, now)
	if r.Total < 0 {
		t.Errorf("empty features: total = %f, want >= 0", r.Total)
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	a := analyzer.Analyze("query", nil)
	if got := Score(&a, nil, Options{}); len(got) != 0 {
		t.Errorf("no items should score to empty, got %d", len(got))
	}
	if got := Score(nil, []Item{{ID: 1, Features: &ItemFeatures{}}}, Options{}); got[0].Total != 0 {
		t.Errorf("nil analysis should zero-score items")
	}
}

func TestExplicitFileBeatsKeywordMatch(t *testing.T) {
	a := analyzer.Analyze("look at auth.js token handling", nil)
	now := time.Now()

	explicit := Item{ID: 1, Features: &ItemFeatures{
		FileName: "auth.js",
		Words:    []string{"token"},
	}}
	keywordOnly := Item{ID: 2, Features: &ItemFeatures{
		Words: []string{"token", "handling", "auth"},
	}}

	results := Score(&a, []Item{keywordOnly, explicit}, Options{Now: now})
	if results[0].ID != 1 {
		t.Errorf("explicit filename should outrank pure keyword match, got id %d first", results[0].ID)
	}
}

func TestRecentMentionBeatsStaleImportance(t *testing.T) {
	history := []analyzer.Message{
		{Role: "user", Content: "the bug is in payment.js"},
	}
	a := analyzer.Analyze("fix the bug", history)
	now := time.Now()

	mentioned := Item{ID: 1, Features: &ItemFeatures{
		FileName:   "payment.js",
		Importance: 3,
	}}
	important := Item{ID: 2, Features: &ItemFeatures{
		Importance: 10,
	}}

	results := Score(&a, []Item{important, mentioned}, Options{Now: now})
	if results[0].ID != 1 {
		t.Errorf("recent conversational mention should outrank stale importance, got id %d first", results[0].ID)
	}
}

func TestMinImportanceExcludesBeforeScoring(t *testing.T) {
	a := analyzer.Analyze("query words", nil)

	items := []Item{
		{ID: 1, Features: &ItemFeatures{Importance: 2}},
		{ID: 2, Features: &ItemFeatures{Importance: 8}},
	}
	results := Score(&a, items, Options{MinImportance: 5})
	if len(results) != 1 || results[0].ID != 2 {
		t.Errorf("low-importance item should be excluded, got %v", results)
	}
}

func TestMaxResultsBound(t *testing.T) {
	a := analyzer.Analyze("query", nil)

	var items []Item
	for i := int64(0); i < 30; i++ {
		items = append(items, Item{ID: i, Features: &ItemFeatures{}})
	}
	if got := Score(&a, items, Options{MaxResults: 5}); len(got) != 5 {
		t.Errorf("got %d results, want 5", len(got))
	}
	if got := Score(&a, items, Options{}); len(got) != 10 {
		t.Errorf("default max results: got %d, want 10", len(got))
	}
}

func TestSubscoreCaps(t *testing.T) {
	history := []analyzer.Message{
		{Role: "user", Content: "alpha.js alpha.js alpha.js beta.js gamma.js"},
		{Role: "user", Content: "alpha.js again and again alpha.js"},
	}
	a := analyzer.Analyze(
		"alpha.js beta.js gamma.js authenticate() validate() connect() register() parse() compile()",
		history,
	)

	f := &ItemFeatures{
		FileName:  "alpha.js",
		Words:     []string{"alpha", "beta", "gamma", "authenticate", "validate", "connect", "register", "parse", "compile", "again"},
		Functions: []string{"authenticate", "validate", "connect", "register", "parse", "compile"},
		Classes:   []string{"Alpha", "Beta", "Gamma"},
	}
	r := ScoreItem(&a, Item{ID: 1, Features: f}, nil, time.Now())

	b := r.Breakdown
	if b.ExplicitMatch > capExplicit {
		t.Errorf("explicit subscore %f exceeds cap %f", b.ExplicitMatch, capExplicit)
	}
	if b.ContentMatch > capContent {
		t.Errorf("content subscore %f exceeds cap %f", b.ContentMatch, capContent)
	}
	if b.StructureMatch > capStructure {
		t.Errorf("structure subscore %f exceeds cap %f", b.StructureMatch, capStructure)
	}
	if b.ConversationRelevance > capConversation {
		t.Errorf("conversation subscore %f exceeds cap %f", b.ConversationRelevance, capConversation)
	}
	if b.IntentMatch > capIntent {
		t.Errorf("intent subscore %f exceeds cap %f", b.IntentMatch, capIntent)
	}
}

func TestQueryTypeBonuses(t *testing.T) {
	a := analyzer.Analyze("write tests for the login flow", nil)
	if a.QueryType != analyzer.TypeTesting {
		t.Fatalf("precondition: query_type = %s", a.QueryType)
	}

	testFile := Item{ID: 1, Features: &ItemFeatures{
		Features: map[string]bool{"test_file": true},
	}}
	plain := Item{ID: 2, Features: &ItemFeatures{}}

	results := Score(&a, []Item{plain, testFile}, Options{})
	if results[0].ID != 1 {
		t.Errorf("test file should rank first for a testing query")
	}
}

func TestReasoningMentionsSignals(t *testing.T) {
	a := analyzer.Analyze("check auth.js", nil)

	r := ScoreItem(&a, Item{ID: 1, Features: &ItemFeatures{FileName: "auth.js"}}, nil, time.Now())
	if r.Reasoning == "" || r.Reasoning == "no signals" {
		t.Errorf("reasoning = %q, want a named signal", r.Reasoning)
	}
}

func TestFeaturesFromMemory(t *testing.T) {
	m := &store.Memory{
		ID:        1,
		Content:   "Fixed the authenticate method in user-service.js, added console.log tracing",
		Metadata:  json.RawMessage(`{"importance":0.9,"categories":["Code"],"keywords":["Auth"]}`),
		CreatedAt: time.Now(),
	}

	f := FeaturesFromMemory(m)
	if f.FileName != "user-service.js" {
		t.Errorf("file name = %q", f.FileName)
	}
	if f.Extension != "js" || f.Language != "javascript" {
		t.Errorf("extension/language = %q/%q", f.Extension, f.Language)
	}
	if f.Category != "code" {
		t.Errorf("category = %q", f.Category)
	}
	if f.Importance != 9 {
		t.Errorf("importance = %d, want 9", f.Importance)
	}
	if !f.Features["has_debug_output"] {
		t.Error("console.log should set has_debug_output")
	}
	found := false
	for _, fn := range f.Functions {
		if fn == "authenticate" {
			found = true
		}
	}
	if !found {
		t.Errorf("functions = %v, want authenticate", f.Functions)
	}

	if FeaturesFromMemory(nil) != nil {
		t.Error("nil memory should derive nil features")
	}
}
