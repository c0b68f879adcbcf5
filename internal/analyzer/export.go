package analyzer

// Exported extraction helpers for feature derivation outside this package.
// They share the exact patterns Analyze uses, so a memory's derived
// features and a query's analysis speak the same vocabulary.

// ExtractFiles returns recognized filenames mentioned in text.
func ExtractFiles(text string) []string { return extractFiles(text) }

// ExtractFunctions returns function-like identifiers mentioned in text.
func ExtractFunctions(text string) []string { return extractFunctions(text) }

// ExtractClasses returns class-like identifiers mentioned in text.
func ExtractClasses(text string) []string { return extractClasses(text) }

// Tokens returns the content words of text after stopword removal.
func Tokens(text string) []string { return extractKeywords(text) }
