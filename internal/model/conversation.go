package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one persisted message of a session's history.
type ConversationTurn struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Ctime     int64  `json:"ctime"`
}

// RetrievedDocument is a transient retrieval hit. It only lives for the
// duration of one query and is echoed back to the client as a source.
type RetrievedDocument struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}
