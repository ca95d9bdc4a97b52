package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	UserID    int64     `json:"user_id"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogApply(userID, amount, balance int64, description string) {
	a.log(Event{
		EventType: "APPLY",
		UserID:    userID,
		Amount:    amount,
		Balance:   balance,
		Status:    "COMMITTED",
		Details:   map[string]string{"description": description},
	})
}

func (a *Logger) LogDuplicate(userID int64, idempotencyKey string) {
	a.log(Event{
		EventType: "DUPLICATE",
		UserID:    userID,
		Status:    "IGNORED",
		Details:   map[string]string{"idempotency_key": idempotencyKey},
	})
}

func (a *Logger) LogCorruption(userID, balance, committedSum int64) {
	a.log(Event{
		EventType: "CORRUPTION",
		UserID:    userID,
		Balance:   balance,
		Status:    "FROZEN",
		Details:   map[string]int64{"committed_sum": committedSum},
	})
}

func (a *Logger) LogError(userID int64, operation string, err error) {
	a.log(Event{
		EventType: "ERROR",
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"operation": operation, "error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	event.EventID = uuid.NewString()
	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[AUDIT] Failed to marshal audit event: %v", err)
		return
	}
	log.Printf("[AUDIT] %s", string(data))
}
