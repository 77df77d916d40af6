package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/tronsend/service/transfer"
)

// TransferEvent is a lifecycle transition published to NATS.
// It is published to the subject "transfers.{network}.{run_id}" in JetStream.
type TransferEvent struct {
	RunID       string `json:"run_id"`
	Network     string `json:"network"`
	State       string `json:"state"`
	ReferenceID string `json:"reference_id,omitempty"`
	Message     string `json:"message,omitempty"`

	// Timing information
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromTransferEvent converts an orchestrator event for publishing.
func FromTransferEvent(e transfer.Event) *TransferEvent {
	return &TransferEvent{
		RunID:       e.RunID,
		Network:     e.Network,
		State:       string(e.State),
		ReferenceID: e.ReferenceID,
		Message:     e.Message,
		Timestamp:   e.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject an event for the given run is published on.
func Subject(network, runID string) string {
	return fmt.Sprintf("transfers.%s.%s", subjectToken(network), subjectToken(runID))
}

// FilterSubject returns the subscription subject for a network and run.
// Empty values match everything.
func FilterSubject(network, runID string) string {
	if network == "" {
		network = "*"
	}
	if runID == "" {
		runID = "*"
	}
	return fmt.Sprintf("transfers.%s.%s", network, runID)
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
