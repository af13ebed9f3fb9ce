package core

// ConversationState is the append-only ordered sequence of role-tagged
// contents accumulated while resolving one task. The orchestrator owns one
// instance per task; nothing is ever rewritten or removed.
type ConversationState struct {
	contents []Content
}

// NewConversation creates an empty conversation.
func NewConversation() *ConversationState {
	return &ConversationState{}
}

// NewConversationFromTask seeds a conversation with optional system
// instructions followed by the user task.
func NewConversationFromTask(instructions, task string) *ConversationState {
	c := NewConversation()
	if instructions != "" {
		c.Append(NewSystemContent(instructions))
	}
	c.Append(NewUserContent(task))
	return c
}

// Append adds a content to the end of the conversation.
func (c *ConversationState) Append(content Content) {
	c.contents = append(c.contents, content)
}

// AppendOutcomes appends the assistant request content followed by one tool
// content per outcome, in the given order. The caller is expected to pass
// outcomes sorted by invocation order so the model sees "request, then each
// result" regardless of actual completion order.
func (c *ConversationState) AppendOutcomes(request Content, outcomes []CapabilityOutcome) {
	c.Append(request)
	for _, o := range outcomes {
		c.Append(Content{
			Role:  "tool",
			Parts: []Part{FunctionResponsePart{FunctionResponse: o.FunctionResponse()}},
		})
	}
}

// Contents returns a copy of the ordered contents.
func (c *ConversationState) Contents() []Content {
	out := make([]Content, len(c.contents))
	copy(out, c.contents)
	return out
}

// Len returns the number of contents appended so far.
func (c *ConversationState) Len() int { return len(c.contents) }

// LastAssistantText returns the text of the most recent assistant content, or "".
func (c *ConversationState) LastAssistantText() string {
	for i := len(c.contents) - 1; i >= 0; i-- {
		if c.contents[i].Role == "assistant" {
			if t := c.contents[i].Text(); t != "" {
				return t
			}
		}
	}
	return ""
}
