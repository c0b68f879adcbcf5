package analyzer

import "regexp"

// Recognized source and config file extensions.
var fileExtPattern = regexp.MustCompile(`(?i)\b([\w./-]+\.(?:js|ts|py|json|md|txt|html|css|yml|yaml|sql|sh|bat|env))\b`)

// Well-known dotfiles carry no extension worth matching.
var dotfilePattern = regexp.MustCompile(`(^|\s)(\.(?:env|gitignore|dockerignore|npmrc|babelrc|eslintrc))\b`)

// Function reference patterns: declarations, call sites, "x method".
var (
	funcDeclPattern   = regexp.MustCompile(`\b(?:function|func|def)\s+([A-Za-z_]\w*)`)
	funcCallPattern   = regexp.MustCompile(`\b([a-z_]\w*)\s*\(`)
	methodNamePattern = regexp.MustCompile(`\b([A-Za-z_]\w*)\s+method\b`)
	methodOfPattern   = regexp.MustCompile(`\bmethod\s+([A-Za-z_]\w*)\b`)
)

// Control-flow and builtin words that look like call sites but aren't.
var callSiteNoise = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true,
	"catch": true, "print": true, "println": true, "log": true, "require": true,
	"import": true, "new": true, "typeof": true, "await": true, "async": true,
}

// Curated noun -> verb map: queries talk about concepts, code names actions.
var nounToVerb = map[string]string{
	"authentication":  "authenticate",
	"validation":      "validate",
	"connection":      "connect",
	"registration":    "register",
	"initialization":  "initialize",
	"serialization":   "serialize",
	"authorization":   "authorize",
	"configuration":   "configure",
}

// nounToVerbOrder keeps map iteration deterministic.
var nounToVerbOrder = []string{
	"authentication", "validation", "connection", "registration",
	"initialization", "serialization", "authorization", "configuration",
}

// Class reference patterns: declarations, construction, prototype access,
// and bare PascalCase identifiers.
var (
	classDeclPattern  = regexp.MustCompile(`\bclass\s+([A-Z]\w*)`)
	newClassPattern   = regexp.MustCompile(`\bnew\s+([A-Z]\w*)`)
	prototypePattern  = regexp.MustCompile(`\b([A-Z]\w*)\.prototype\b`)
	pascalCasePattern = regexp.MustCompile(`\b([A-Z][a-z0-9]+(?:[A-Z][a-z0-9]*)+)\b`)
)

// Bounded word-class patterns per intent. First match per intent wins; the
// intent list preserves this order.
var intentOrder = []string{
	IntentConfig, IntentDocumentation, IntentTest, IntentError,
	IntentImplementation, IntentDatabase, IntentAPI, IntentUI, IntentAuth,
}

var intentPatterns = map[string]*regexp.Regexp{
	IntentConfig:         regexp.MustCompile(`(?i)\b(config|configuration|configure|settings?|setup|environment|env var)\b`),
	IntentDocumentation:  regexp.MustCompile(`(?i)\b(docs?|documentation|readme|guide|changelog)\b`),
	IntentTest:           regexp.MustCompile(`(?i)\b(tests?|testing|spec|coverage|assert)\b`),
	IntentError:          regexp.MustCompile(`(?i)\b(error|errors|bug|bugs|debug|debugging|crash|exception|broken|failure|failing|fails)\b`),
	IntentImplementation: regexp.MustCompile(`(?i)\b(implement|implementation|build|create|add|develop|write|refactor)\b`),
	IntentDatabase:       regexp.MustCompile(`(?i)\b(database|db|sql|query|queries|table|schema|migration)\b`),
	IntentAPI:            regexp.MustCompile(`(?i)\b(api|endpoint|route|rest|graphql|request|response)\b`),
	IntentUI:             regexp.MustCompile(`(?i)\b(ui|interface|frontend|component|button|page|layout|styling)\b`),
	IntentAuth:           regexp.MustCompile(`(?i)\b(auth|authentication|login|logout|token|password|jwt|oauth)\b`),
}

// Ambiguous query openers: questions about things, not requests to change
// them.
var ambiguousOpeners = []string{
	"show me", "tell me about", "what is", "how is", "where is", "help me with",
}

// Action verbs that disambiguate an opener into a work request.
var actionVerbPattern = regexp.MustCompile(`(?i)\b(create|add|implement|build|update|fix|debug|test)\b`)

// Keyword-override word classes for classification rule 4.
var (
	debugWordsPattern  = regexp.MustCompile(`(?i)\b(debug|debugging|troubleshoot|diagnose|trace)\b`)
	testWordsPattern   = regexp.MustCompile(`(?i)\b(tests?|testing|spec|coverage)\b`)
	buildWordsPattern  = regexp.MustCompile(`(?i)\b(build|implement|create|develop|refactor)\b`)
	configWordsPattern = regexp.MustCompile(`(?i)\b(configure|configuration|settings)\b`)
	updateWordsPattern = regexp.MustCompile(`(?i)\b(update|change|modify|edit)\b`)
)

// Error and task cues scanned across conversation history.
var (
	errorCuePattern = regexp.MustCompile(`(?i)\b(error|bug|crash|exception|broken|failure|failing|fails|issue)\b`)
	taskCuePattern  = regexp.MustCompile(`(?i)\b(create|add|implement|build|update|fix|debug|test|refactor|write)\b`)
)

// Config file shapes for classification rules 4 and 5.
var configFilePattern = regexp.MustCompile(`(?i)(\.(?:json|yml|yaml|env)\b|\.env\b|\.npmrc\b|\.babelrc\b|\.eslintrc\b|config\.\w+)`)
