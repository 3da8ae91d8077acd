package models

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message part types. Parts of any other type are not convertible.
const (
	PartText  = "text"
	PartFile  = "file"
	PartAgent = "agent"
)

// ConversationMessage is one entry of a session's message history as
// reported by the host. The daemon only ever reads snapshots of these;
// the history itself belongs to the host.
type ConversationMessage struct {
	ID    string        `json:"id"`
	Role  string        `json:"role"`
	Model string        `json:"modelID,omitempty"`
	Agent string        `json:"agent,omitempty"`
	Parts []MessagePart `json:"parts"`
}

// MessagePart is a typed fragment of a conversation message. Synthetic
// parts were injected by the host rather than authored by the user and
// are never resubmitted.
type MessagePart struct {
	Type      string `json:"type"`
	Synthetic bool   `json:"synthetic,omitempty"`

	// text parts
	Text string `json:"text,omitempty"`

	// file parts
	Mime     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`

	// agent parts
	Name string `json:"name,omitempty"`
}
