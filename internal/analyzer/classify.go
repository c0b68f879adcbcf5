package analyzer

import "strings"

// classify assigns the query type. The rule order is part of the contract;
// the first matching rule wins.
func classify(query string, a *QueryAnalysis) string {
	lower := strings.ToLower(strings.TrimSpace(query))

	// 1. Ambiguous opener with no action verb: a question, not a request.
	for _, opener := range ambiguousOpeners {
		if strings.HasPrefix(lower, opener) && !actionVerbPattern.MatchString(query) {
			return TypeGeneral
		}
	}

	// 2. Strong intents map directly. Error outranks test so that
	// "debug X and write tests" stays a debugging query.
	if hasIntent(a.Intents, IntentError) {
		return TypeDebugging
	}
	if hasIntent(a.Intents, IntentTest) {
		return TypeTesting
	}
	if hasIntent(a.Intents, IntentConfig) {
		return TypeConfiguration
	}
	if hasIntent(a.Intents, IntentDocumentation) {
		return TypeDocumentation
	}

	// 3. Implementation splits on whether tests are in play.
	if hasIntent(a.Intents, IntentImplementation) {
		if testWordsPattern.MatchString(query) {
			return TypeTesting
		}
		return TypeDevelopment
	}

	// 4. Keyword overrides.
	if debugWordsPattern.MatchString(query) {
		return TypeDebugging
	}
	if testWordsPattern.MatchString(query) {
		return TypeTesting
	}
	if buildWordsPattern.MatchString(query) && !testWordsPattern.MatchString(query) {
		return TypeDevelopment
	}
	if configWordsPattern.MatchString(query) {
		return TypeConfiguration
	}
	if updateWordsPattern.MatchString(query) && hasConfigFile(a.ExplicitFiles) {
		return TypeConfiguration
	}

	// 5. Explicit config-file reference.
	if hasConfigFile(a.ExplicitFiles) {
		return TypeConfiguration
	}

	// 6-7. Code and file references.
	if len(a.Functions) > 0 || len(a.Classes) > 0 {
		return TypeCodeSpecific
	}
	if len(a.ExplicitFiles) > 0 {
		return TypeFileSpecific
	}

	return TypeGeneral
}

func hasConfigFile(files []string) bool {
	for _, f := range files {
		if configFilePattern.MatchString(f) {
			return true
		}
	}
	return false
}
