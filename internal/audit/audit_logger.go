package audit

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"

	"github.com/goodcoins/backend/internal/models"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ChildID       string    `json:"child_id,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger writes one JSON line per ledger-relevant event.
type Logger struct {
	out *log.Logger
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stderr)
}

func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{out: log.New(w, "", log.LstdFlags)}
}

// LogTransaction records a committed ledger entry.
func (a *Logger) LogTransaction(tx *models.Transaction) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "LEDGER_" + string(tx.Kind),
		TransactionID: tx.ID,
		ChildID:       tx.ChildID,
		ActorID:       tx.CreatedBy,
		Amount:        tx.Amount,
		Status:        "COMMITTED",
		Details: map[string]any{
			"description":   tx.Description,
			"balance_after": tx.BalanceAfter,
		},
	})
}

// LogFailure records a workflow call that left no state behind.
func (a *Logger) LogFailure(operation string, actor models.Actor, childID string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: operation,
		ChildID:   childID,
		ActorID:   actor.ID,
		Status:    "REJECTED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) LogOperation(operation string, actor models.Actor, childID, details string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: operation,
		ChildID:   childID,
		ActorID:   actor.ID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
