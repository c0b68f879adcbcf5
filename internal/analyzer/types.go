package analyzer

// Message is one turn of conversation history fed to the analyzer.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryAnalysis is the structured result of analyzing a free-text query
// plus recent conversation history.
type QueryAnalysis struct {
	ExplicitFiles          []string            `json:"explicit_files"`
	Functions              []string            `json:"functions"`
	Classes                []string            `json:"classes"`
	Intents                []string            `json:"intents"`
	Keywords               []string            `json:"keywords"`
	ConversationContext    ConversationContext `json:"conversation_context"`
	RecentlyMentionedFiles []FileMention       `json:"recently_mentioned_files"`
	QueryType              string              `json:"query_type"`
	Confidence             float64             `json:"confidence"`
}

// ConversationContext summarizes the last few messages of history.
type ConversationContext struct {
	Topics         []string `json:"topics"`
	MentionedFiles []string `json:"mentioned_files"`
	CodeElements   []string `json:"code_elements"`
	Errors         []string `json:"errors"`
	Tasks          []string `json:"tasks"`
	HasErrors      bool     `json:"has_errors"`
	HasTasks       bool     `json:"has_tasks"`
}

// FileMention tracks a filename seen in recent history. LastMentionIndex
// counts back from the most recent message: 0 means the latest message.
type FileMention struct {
	Filename         string `json:"filename"`
	Mentions         int    `json:"mentions"`
	LastMentionIndex int    `json:"last_mention_index"`
}

// Query types assigned by classify.
const (
	TypeGeneral       = "general"
	TypeDebugging     = "debugging"
	TypeTesting       = "testing"
	TypeConfiguration = "configuration"
	TypeDocumentation = "documentation"
	TypeDevelopment   = "development"
	TypeCodeSpecific  = "code_specific"
	TypeFileSpecific  = "file_specific"
)

// Intent labels detected from query wording.
const (
	IntentConfig         = "config"
	IntentDocumentation  = "documentation"
	IntentTest           = "test"
	IntentError          = "error"
	IntentImplementation = "implementation"
	IntentDatabase       = "database"
	IntentAPI            = "api"
	IntentUI             = "ui"
	IntentAuth           = "auth"
)

// Caps on derived collections.
const (
	maxTopics          = 20
	maxCodeElements    = 15
	maxRecentFiles     = 5
	contextWindow      = 5  // messages considered for conversation context
	recentFilesWindow  = 10 // messages considered for file mentions
	excerptLen         = 100
)
