package lifeevent

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Discard reasons, used as metric labels and log fields.
const (
	DiscardUnknownInformationType = "unknown_information_type"
	DiscardUnknownChangeType      = "unknown_change_type"
	DiscardGuardianshipKind       = "guardianship_kind_not_listed"
	DiscardUngradedProtection     = "ungraded_address_protection"
)

// informationTypes maps the registry's declared information-type string to a
// category. Unknown information types are discarded without side effects.
var informationTypes = map[string]Category{
	"DEATH_V1":                 CategoryDeath,
	"RELOCATION_ABROAD_V1":     CategoryRelocationAbroad,
	"PARENT_CHILD_RELATION_V1": CategoryParentChildRelation,
	"GUARDIANSHIP_V1":          CategoryGuardianship,
	"ADDRESS_PROTECTION_V1":    CategoryAddressProtection,
}

var changeTypes = map[string]ChangeType{
	"CREATED":   ChangeCreated,
	"CORRECTED": ChangeCorrected,
	"CANCELLED": ChangeCancelled,
}

// guardianshipKinds is the allow-list for the guardianship sub-rule. Registry
// guardianship records also cover mandates this pipeline has no handler for.
var guardianshipKinds = map[string]bool{
	"ADULT": true,
	"MINOR": true,
}

// Classifier filters the decoded stream down to actionable life events.
// Stateless; the lookup tables are fixed at build time.
type Classifier struct {
	logger *slog.Logger
}

func NewClassifier(logger *slog.Logger) *Classifier {
	return &Classifier{logger: logger}
}

type guardianshipPayload struct {
	Kind string `json:"kind"`
}

type addressProtectionPayload struct {
	Grading string `json:"grading"`
}

// Classify turns one change record into a life-event candidate, or discards
// it. A discarded record returns a zero LifeEvent and the discard reason.
func (c *Classifier) Classify(rec ChangeRecord, receivedAt time.Time) (LifeEvent, string) {
	category, ok := informationTypes[rec.InformationType]
	if !ok {
		return LifeEvent{}, DiscardUnknownInformationType
	}

	changeType, ok := changeTypes[rec.ChangeType]
	if !ok {
		c.logger.Warn("discarding record with unknown change type",
			"event_id", rec.EventID,
			"change_type", rec.ChangeType,
		)
		return LifeEvent{}, DiscardUnknownChangeType
	}

	switch category {
	case CategoryGuardianship:
		var payload guardianshipPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil || !guardianshipKinds[payload.Kind] {
			return LifeEvent{}, DiscardGuardianshipKind
		}
	case CategoryAddressProtection:
		var payload addressProtectionPayload
		// The lowest grading carries no actionable consequence.
		if err := json.Unmarshal(rec.Payload, &payload); err != nil || payload.Grading == "" || payload.Grading == "UNGRADED" {
			return LifeEvent{}, DiscardUngradedProtection
		}
	}

	return LifeEvent{
		SourceEventID: rec.EventID,
		Category:      category,
		ChangeType:    changeType,
		ReceivedAt:    receivedAt,
	}, ""
}
