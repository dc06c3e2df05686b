package lifeevent

import (
	"encoding/json"
	"time"

	"lifeline/pkg/domain"
)

// Category classifies a registry change into the life events this pipeline
// acts on.
type Category string

const (
	CategoryDeath               Category = "DEATH"
	CategoryRelocationAbroad    Category = "RELOCATION_ABROAD"
	CategoryParentChildRelation Category = "PARENT_CHILD_RELATION"
	CategoryGuardianship        Category = "GUARDIANSHIP"
	CategoryAddressProtection   Category = "ADDRESS_PROTECTION"
)

// ChangeType mirrors the registry's change semantics for a record.
type ChangeType string

const (
	ChangeCreated   ChangeType = "CREATED"
	ChangeCorrected ChangeType = "CORRECTED"
	ChangeCancelled ChangeType = "CANCELLED"
)

// ChangeRecord is the decoded wire form of one registry change-data-capture
// record from the inbound topic.
type ChangeRecord struct {
	EventID         string          `json:"eventId"`
	PersonIdent     string          `json:"personIdent"`
	InformationType string          `json:"informationType"`
	ChangeType      string          `json:"changeType"`
	Payload         json.RawMessage `json:"payload"`
}

// LifeEvent is a classified, resolved occurrence ready for dispatch. Immutable
// once built; the source event id carries through for deduplication and
// correlation downstream.
type LifeEvent struct {
	SourceEventID string
	Subject       domain.PersonID
	Category      Category
	ChangeType    ChangeType
	ReceivedAt    time.Time
}
