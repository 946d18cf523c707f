package storage

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a curated answer row from the pricing or knowledge table.
// Tags are only populated for knowledge entries.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	Question    string    `json:"question"`
	Intent      string    `json:"intent"`
	AnswerVoice string    `json:"answer_voice"`
	AnswerLong  string    `json:"answer_long"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags,omitempty"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"active"`
	LastUpdated time.Time `json:"last_updated"`
}

// Material is a catalog row. CurrentPrice is nil when the price is quoted on request.
type Material struct {
	ID           uuid.UUID `json:"id"`
	MaterialName string    `json:"material_name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	CurrentPrice *float64  `json:"current_price"`
	PriceUnit    string    `json:"price_unit"`
	Priority     int       `json:"priority"`
	Active       bool      `json:"active"`
	LastUpdated  time.Time `json:"last_updated"`
}

// CallbackStatus tracks the lifecycle of a callback request.
type CallbackStatus string

const (
	CallbackStatusPending   CallbackStatus = "pending"
	CallbackStatusCompleted CallbackStatus = "completed"
	CallbackStatusCancelled CallbackStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s CallbackStatus) Valid() bool {
	switch s {
	case CallbackStatusPending, CallbackStatusCompleted, CallbackStatusCancelled:
		return true
	}
	return false
}

// CallbackRequest is a caller's request to be phoned back.
type CallbackRequest struct {
	ID                  uuid.UUID      `json:"id"`
	CallerName          string         `json:"caller_name"`
	CallerPhone         string         `json:"caller_phone"`
	PhoneKey            string         `json:"-"`
	MaterialDescription string         `json:"material_description"`
	Notes               string         `json:"notes"`
	Status              CallbackStatus `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
}

// CustomerMessage is a free-form message left for staff.
type CustomerMessage struct {
	ID            uuid.UUID `json:"id"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	Message       string    `json:"message"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Conversation is a logged call.
type Conversation struct {
	ID                uuid.UUID `json:"id"`
	CallID            string    `json:"call_id"`
	PhoneNumber       string    `json:"phone_number"`
	PhoneKey          string    `json:"-"`
	StartTime         time.Time `json:"start_time"`
	CallDuration      int       `json:"call_duration"`
	IssueCategory     string    `json:"issue_category"`
	ResolutionStatus  string    `json:"resolution_status"`
	SatisfactionScore *int      `json:"satisfaction_score"`
	Summary           string    `json:"summary"`
	Transcript        string    `json:"transcript"`
	Messages          []Message `json:"messages,omitempty"`
}

// Message is one utterance within a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Sender         string    `json:"sender"` // customer or agent
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResolutionRecord is a persisted cascade outcome.
type ResolutionRecord struct {
	ID         uuid.UUID `json:"id"`
	Query      string    `json:"query"`
	Stage      string    `json:"stage"`
	Source     string    `json:"source"`
	FactID     string    `json:"fact_id"`
	Matched    bool      `json:"matched"`
	LatencyMS  int64     `json:"latency_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Stats holds dashboard counters.
type Stats struct {
	TotalMaterials  int `json:"total_materials"`
	ActiveMaterials int `json:"active_materials"`
	TotalKnowledge  int `json:"total_knowledge"`
	ActiveKnowledge int `json:"active_knowledge"`
	TotalCalls      int `json:"total_calls"`
	ResolvedCalls   int `json:"resolved_calls"`
	OpenCallbacks   int `json:"open_callbacks"`
}

func newID() uuid.UUID {
	// v7 ids sort by creation time, which makes "id ASC" a stable age order
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}
