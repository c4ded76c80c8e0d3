package models

import "time"

// TurnRecord is one persisted conversation turn. Payload holds the turn's
// evidence as JSON.
type TurnRecord struct {
	ID        int64
	StoreID   string
	Role      string
	Text      string
	Payload   string
	CreatedAt time.Time
}

type ChatRecord struct {
	ID              string
	StoreID         string
	Model           string
	Message         string
	Response        string
	Citations       []string
	ChunkCount      int
	SupportCount    int
	HasReasoning    bool
	Degraded        bool
	ErrorText       string
	PromptTokens    int
	CandidateTokens int
	ThoughtTokens   int
	LatencyMS       int
	CreatedAt       time.Time
}

type UploadRecord struct {
	ID          string
	StoreID     string
	DisplayName string
	MimeType    string
	Bytes       int
	Status      string
	Stage       string
	ErrorText   string
	Polls       int
	LatencyMS   int
	CreatedAt   time.Time
}

type StoreEvent struct {
	ID          int64
	StoreID     string
	Action      string
	DisplayName string
	CreatedAt   time.Time
}
