package model

// PredictRequest is the body of POST /predict. Setting NewSession without a
// SessionID asks the server to mint one and echo it back.
type PredictRequest struct {
	Message    string `json:"message"`
	Category   string `json:"category"`
	SessionID  string `json:"session_id,omitempty"`
	NewSession bool   `json:"new_session,omitempty"`
}

// PredictResponse is the success body of POST /predict. Sources is always
// present in the serialized form, possibly empty.
type PredictResponse struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"session_id,omitempty"`
}

// PredictError is the error body of POST /predict. Answer always carries a
// user-facing guidance string so clients can render it directly.
type PredictError struct {
	Error  string `json:"error"`
	Answer string `json:"answer"`
}

// ChatResult is what the orchestrator returns for one query. Answer is never
// empty; Sources preserves retrieval order and is empty on every fallback
// path.
type ChatResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Turn is one completed (question, answer) exchange in a conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CategoryInfo describes one registry entry for GET /categories.
type CategoryInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	Availability string `json:"availability"`
	ChunkCount   int64  `json:"chunk_count"`
}
