package scorer

import (
	"strings"

	"github.com/Wawtawsha/durandal-mcp/internal/analyzer"
	"github.com/Wawtawsha/durandal-mcp/internal/store"
)

// languageByExt maps file extensions to language labels.
var languageByExt = map[string]string{
	"js": "javascript", "ts": "typescript", "py": "python", "sql": "sql",
	"sh": "shell", "bat": "batch", "html": "html", "css": "css",
	"json": "json", "yml": "yaml", "yaml": "yaml", "md": "markdown",
}

// FeaturesFromMemory derives scoring features from a stored memory row.
// Absent signals stay zero-valued; the scorer tolerates that uniformly.
func FeaturesFromMemory(m *store.Memory) *ItemFeatures {
	if m == nil {
		return nil
	}
	fields := store.ParseMeta(m.Metadata)

	f := &ItemFeatures{
		Functions:  analyzer.ExtractFunctions(m.Content),
		Classes:    analyzer.ExtractClasses(m.Content),
		Modified:   m.CreatedAt,
		Importance: int(fields.Importance * 10),
		Features:   map[string]bool{},
	}

	// Token set: content words plus caller-supplied keywords.
	words := analyzer.Tokens(m.Content)
	for _, kw := range fields.Keywords {
		words = append(words, strings.ToLower(kw))
	}
	f.Words = words

	if files := analyzer.ExtractFiles(m.Content); len(files) > 0 {
		f.FileName = files[0]
		f.Extension = extOf(files[0])
		f.Language = languageByExt[f.Extension]
	}

	if len(fields.Categories) > 0 {
		f.Category = strings.ToLower(fields.Categories[0])
	}

	lower := strings.ToLower(m.Content)
	name := strings.ToLower(f.FileName)
	if strings.Contains(name, "test") || strings.Contains(name, "spec") || f.Category == "test" {
		f.Features["test_file"] = true
	}
	if strings.Contains(lower, "express") || strings.Contains(lower, "app.listen") {
		f.Features["express_server"] = true
	}
	if strings.Contains(lower, "console.log") || strings.Contains(lower, "debug") || strings.Contains(lower, "logger") {
		f.Features["has_debug_output"] = true
	}

	return f
}
