package analyzer

import (
	"reflect"
	"testing"
)

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestAmbiguousOpenerStaysGeneral(t *testing.T) {
	// "database" intent matches, but the opener wins.
	a := Analyze("Show me the database setup", nil)
	if a.QueryType != TypeGeneral {
		t.Errorf("query_type = %s, want general", a.QueryType)
	}
	if !hasIntent(a.Intents, IntentDatabase) {
		t.Error("database intent should still be detected")
	}
}

func TestAmbiguousOpenerWithActionVerb(t *testing.T) {
	a := Analyze("Help me with fixing this, update the auth config", nil)
	if a.QueryType == TypeGeneral {
		t.Errorf("action verb should disambiguate, got %s", a.QueryType)
	}
}

func TestConversationDrivenRecency(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "Working on user-service.js authentication bug"},
		{Role: "assistant", Content: "The authenticate method has issues"},
	}
	a := Analyze("Fix the authentication bug in UserService", history)

	if len(a.RecentlyMentionedFiles) == 0 || a.RecentlyMentionedFiles[0].Filename != "user-service.js" {
		t.Errorf("recently_mentioned_files = %v, want user-service.js first", a.RecentlyMentionedFiles)
	}
	if !contains(a.Functions, "authenticate") {
		t.Errorf("functions = %v, want authenticate", a.Functions)
	}
	if !contains(a.Classes, "UserService") {
		t.Errorf("classes = %v, want UserService", a.Classes)
	}
	if a.QueryType != TypeDebugging {
		t.Errorf("query_type = %s, want debugging", a.QueryType)
	}
}

func TestDebuggingBeatsTesting(t *testing.T) {
	a := Analyze("Debug the UserService authenticate method and write tests for it", nil)
	if a.QueryType != TypeDebugging {
		t.Errorf("query_type = %s, want debugging", a.QueryType)
	}
}

func TestImplementationSplitsOnTests(t *testing.T) {
	a := Analyze("Implement coverage for the parser", nil)
	if a.QueryType != TypeTesting {
		t.Errorf("implementation + test words: got %s, want testing", a.QueryType)
	}

	a = Analyze("Implement the parser module", nil)
	if a.QueryType != TypeDevelopment {
		t.Errorf("implementation alone: got %s, want development", a.QueryType)
	}
}

func TestUpdateWordsWithConfigFile(t *testing.T) {
	a := Analyze("Change package.json to bump the major release", nil)
	if a.QueryType != TypeConfiguration {
		t.Errorf("query_type = %s, want configuration", a.QueryType)
	}
}

func TestExplicitConfigFileReference(t *testing.T) {
	a := Analyze("the .env has my secrets", nil)
	if !contains(a.ExplicitFiles, ".env") {
		t.Errorf("explicit_files = %v, want .env", a.ExplicitFiles)
	}
	if a.QueryType != TypeConfiguration {
		t.Errorf("query_type = %s, want configuration", a.QueryType)
	}
}

func TestCodeSpecificAndFileSpecific(t *testing.T) {
	a := Analyze("what does parseRequest( do here", nil)
	if a.QueryType != TypeCodeSpecific {
		t.Errorf("function mention: got %s, want code_specific", a.QueryType)
	}

	// readme.md carries the documentation intent, which outranks the
	// file-specific rule.
	a = Analyze("open readme.md please", nil)
	if a.QueryType != TypeDocumentation {
		t.Errorf("readme mention: got %s, want documentation", a.QueryType)
	}

	a = Analyze("open notes.txt please", nil)
	if a.QueryType != TypeFileSpecific {
		t.Errorf("plain file mention: got %s, want file_specific", a.QueryType)
	}
}

func TestExtractFilesAndDotfiles(t *testing.T) {
	files := ExtractFiles("compare Config.JSON with src/app.ts and .gitignore plus notes.txt")
	want := []string{"config.json", "src/app.ts", "notes.txt", ".gitignore"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
}

func TestNounToVerbMap(t *testing.T) {
	fns := ExtractFunctions("the validation and registration flow")
	if !contains(fns, "validate") || !contains(fns, "register") {
		t.Errorf("functions = %v, want validate and register", fns)
	}
}

func TestKeywordsDropStopwords(t *testing.T) {
	a := Analyze("What is the best way to configure the database connection?", nil)
	for _, kw := range a.Keywords {
		if kw == "the" || kw == "is" || kw == "to" || kw == "what" {
			t.Errorf("stopword %q leaked into keywords %v", kw, a.Keywords)
		}
	}
	if !contains(a.Keywords, "database") {
		t.Errorf("keywords = %v, want database", a.Keywords)
	}
}

func TestConversationContextWindow(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "ancient message about ancient-file.py"},
		{Role: "user", Content: "one"},
		{Role: "user", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "user", Content: "four"},
		{Role: "user", Content: "the build failed with an error in main.js"},
	}
	a := Analyze("anything", history)

	ctx := a.ConversationContext
	if !ctx.HasErrors {
		t.Error("has_errors should be true")
	}
	if !contains(ctx.MentionedFiles, "main.js") {
		t.Errorf("mentioned_files = %v, want main.js", ctx.MentionedFiles)
	}
	// ancient-file.py is outside the 5-message context window.
	if contains(ctx.MentionedFiles, "ancient-file.py") {
		t.Error("context window leaked beyond 5 messages")
	}
	// But it is inside the 10-message recent-files window.
	found := false
	for _, m := range a.RecentlyMentionedFiles {
		if m.Filename == "ancient-file.py" {
			found = true
		}
	}
	if !found {
		t.Errorf("recently_mentioned_files = %v, want ancient-file.py included", a.RecentlyMentionedFiles)
	}
}

func TestRecentMentionIndexing(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "first look at alpha.js"},
		{Role: "assistant", Content: "alpha.js looks fine, check beta.js"},
		{Role: "user", Content: "ok opening beta.js now"},
	}
	a := Analyze("continue", history)

	if len(a.RecentlyMentionedFiles) != 2 {
		t.Fatalf("got %d file mentions, want 2", len(a.RecentlyMentionedFiles))
	}
	first := a.RecentlyMentionedFiles[0]
	if first.Filename != "beta.js" || first.LastMentionIndex != 0 || first.Mentions != 2 {
		t.Errorf("first mention = %+v, want beta.js index 0 mentions 2", first)
	}
	second := a.RecentlyMentionedFiles[1]
	if second.Filename != "alpha.js" || second.LastMentionIndex != 1 || second.Mentions != 2 {
		t.Errorf("second mention = %+v, want alpha.js index 1 mentions 2", second)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "Working on user-service.js authentication bug"},
		{Role: "assistant", Content: "The authenticate method has issues in UserService"},
	}
	query := "Fix the authentication bug in UserService and update config.json"

	first := Analyze(query, history)
	for i := 0; i < 10; i++ {
		if !reflect.DeepEqual(first, Analyze(query, history)) {
			t.Fatal("Analyze is not deterministic")
		}
	}
}

func TestConfidenceBounds(t *testing.T) {
	empty := Analyze("", nil)
	if empty.Confidence < 0 || empty.Confidence > 1 {
		t.Errorf("confidence out of range: %f", empty.Confidence)
	}

	rich := Analyze(
		"Fix the authenticate error in user-service.js and UserService tests for the api config database",
		[]Message{
			{Role: "user", Content: "error in user-service.js"},
			{Role: "assistant", Content: "fix the authenticate method"},
		},
	)
	if rich.Confidence <= empty.Confidence {
		t.Errorf("rich query confidence %f should exceed empty %f", rich.Confidence, empty.Confidence)
	}
	if rich.Confidence > 1 {
		t.Errorf("confidence exceeds cap: %f", rich.Confidence)
	}
}
