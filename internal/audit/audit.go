package audit

import (
	"encoding/json"
	"time"

	"crou/internal/events"
	console "crou/internal/utils/logger"
)

var log = console.New("AUDIT")

// Record is one structured audit entry: who tried what, on which resource,
// and how it was decided.
type Record struct {
	Timestamp time.Time `json:"ts"`
	Actor     string    `json:"actor"`
	TenantID  string    `json:"tenantId"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	IPAddress string    `json:"ip,omitempty"`
}

const (
	DecisionGranted    = "GRANTED"
	DecisionDenied     = "DENIED"
	DecisionTransition = "TRANSITION"
)

// EventDenial and EventTransition are the bus topics the sink subscribes to.
const (
	EventDenial     = "audit.denial"
	EventTransition = "audit.transition"
)

// Register wires the sink onto the event bus. Emission is fire-and-forget:
// request success never depends on the sink.
func Register() {
	events.On(EventDenial, write)
	events.On(EventTransition, write)
}

// Denied emits an audit record for a permission denial.
func Denied(actor, tenantID, resource, action, reason, ip string) {
	events.Emit(EventDenial, Record{
		Timestamp: time.Now(),
		Actor:     actor,
		TenantID:  tenantID,
		Resource:  resource,
		Action:    action,
		Decision:  DecisionDenied,
		Reason:    reason,
		IPAddress: ip,
	})
}

// Transition emits an audit record for a batch lifecycle transition.
func Transition(actor, tenantID, batchID, operation string) {
	events.Emit(EventTransition, Record{
		Timestamp: time.Now(),
		Actor:     actor,
		TenantID:  tenantID,
		Resource:  "housing:batch:" + batchID,
		Action:    operation,
		Decision:  DecisionTransition,
	})
}

func write(data interface{}) {
	record, ok := data.(Record)
	if !ok {
		return
	}
	line, err := json.Marshal(record)
	if err != nil {
		log.Warn("Failed to marshal audit record: %v", err)
		return
	}
	log.Info("%s", string(line))
}
