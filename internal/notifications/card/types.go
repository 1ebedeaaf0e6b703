package card

// Payload is the Teams activity wrapper around an Adaptive Card
// attachment, as accepted by Bot Framework proactive messaging.
type Payload struct {
	Type        string       `json:"type"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment wraps the Adaptive Card content.
type Attachment struct {
	ContentType string       `json:"contentType"`
	Content     AdaptiveCard `json:"content"`
}

// AdaptiveCard is the top-level card structure (schema version 1.4).
type AdaptiveCard struct {
	Type    string         `json:"type"`
	Version string         `json:"version"`
	Body    []AdaptiveItem `json:"body"`
	Actions []Action       `json:"actions,omitempty"`
}

// AdaptiveItem is one body element (TextBlock, FactSet, ...).
type AdaptiveItem struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
	Facts  []Fact `json:"facts,omitempty"`
}

// Fact is one FactSet entry.
type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Action is a card action: a deep link (Action.OpenUrl) or a bot submit
// (Action.Submit with a command payload).
type Action struct {
	Type  string            `json:"type"`
	Title string            `json:"title"`
	URL   string            `json:"url,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}
