package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	AggregateCell    = "grid_cell"
	AggregateProject = "project"

	EventMemberRegistered = "member_registered"
	EventCellsLoaded      = "cells_loaded"
	EventProjectCreated   = "project_registered"
	EventProjectDeleted   = "project_deleted"
)

// Event is one outbox row. It is written in the same transaction as the state
// change it describes and published to Kafka afterwards, at least once.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewEvent marshals payload into a new event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any, now time.Time) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
		CreatedAt:     now,
	}, nil
}

// MemberRegistered is the payload of EventMemberRegistered.
type MemberRegistered struct {
	ProjectID   string    `json:"projectId"`
	CellID      string    `json:"cellId"`
	GridID      string    `json:"gridId"`
	MemberID    string    `json:"memberId"`
	MemberCount int       `json:"memberCount"`
	IsFull      bool      `json:"isFull"`
	At          time.Time `json:"at"`
}

// CellsLoaded is the payload of EventCellsLoaded.
type CellsLoaded struct {
	ProjectID string    `json:"projectId"`
	Requested int       `json:"requested"`
	Inserted  int       `json:"inserted"`
	At        time.Time `json:"at"`
}

// ProjectChanged is the payload of the project lifecycle events.
type ProjectChanged struct {
	ProjectID       string    `json:"projectId"`
	RegistrationRef string    `json:"registrationRef,omitempty"`
	LedgerTx        string    `json:"ledgerTx,omitempty"`
	At              time.Time `json:"at"`
}
