package conversation

// Message is one prompt-ready entry produced by FormatForConversation.
// Metadata has a fixed shape regardless of what the block carried, so
// downstream prompt templates never branch on field presence.
type Message struct {
	Role     string          `json:"role"`
	Content  string          `json:"content"`
	Metadata MessageMetadata `json:"metadata"`
}

type MessageMetadata struct {
	BlockType  BlockType `json:"block_type"`
	HasQuery   bool      `json:"has_query"`
	ResultRows int       `json:"result_rows"`
}

// AnalysisEntry is the full-fat representation used only by the data
// analyzer; it includes the execution result payload.
type AnalysisEntry struct {
	UserRequest       string           `json:"user_request"`
	AssistantResponse string           `json:"assistant_response"`
	GeneratedQuery    string           `json:"generated_query,omitempty"`
	ExecutionResult   *ExecutionResult `json:"execution_result,omitempty"`
}

// FormatForConversation renders the most recent maxN blocks as role-tagged
// messages in chronological order. Result payloads are excluded entirely;
// the metadata slot reports query presence and result row count instead so
// prompts stay cheap but the shape stays constant. Input blocks are never
// mutated.
func FormatForConversation(blocks []ContextBlock, maxN int) []Message {
	if maxN > 0 && len(blocks) > maxN {
		blocks = blocks[len(blocks)-maxN:]
	}

	messages := make([]Message, 0, len(blocks)*2)
	for _, block := range blocks {
		meta := MessageMetadata{
			BlockType:  block.BlockType,
			HasQuery:   block.GeneratedQuery != "",
			ResultRows: block.ResultRowCount(),
		}
		messages = append(messages, Message{
			Role:     "user",
			Content:  block.UserRequest,
			Metadata: meta,
		})
		messages = append(messages, Message{
			Role:     "assistant",
			Content:  block.AssistantResponse,
			Metadata: meta,
		})
	}
	return messages
}

// FormatForAnalysis renders every block in full, result payloads included.
// The analyzer needs actual rows, so unlike FormatForConversation nothing
// is stripped. Input blocks are never mutated.
func FormatForAnalysis(blocks []ContextBlock) []AnalysisEntry {
	entries := make([]AnalysisEntry, 0, len(blocks))
	for _, block := range blocks {
		entry := AnalysisEntry{
			UserRequest:       block.UserRequest,
			AssistantResponse: block.AssistantResponse,
			GeneratedQuery:    block.GeneratedQuery,
		}
		if block.ExecutionResult != nil {
			result := *block.ExecutionResult
			if result.Rows == nil {
				result.RowCount = 0
			}
			entry.ExecutionResult = &result
		}
		entries = append(entries, entry)
	}
	return entries
}
