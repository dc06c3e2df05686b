// Package registry holds clients for the external population registry: the
// identifier-resolution endpoint and the person-record endpoint. Both are
// network calls; callers treat transport failures as retryable and must not
// advance consumer offsets past them.
package registry

import (
	"context"
	"time"

	"lifeline/pkg/domain"
)

// IdentKind is the registry's classification of a resolved identifier.
type IdentKind string

const (
	// IdentPermanent is a canonical national identity number.
	IdentPermanent IdentKind = "PERMANENT"
	// IdentAlternate covers temporary identifiers (D-numbers and similar).
	// Events carried by an alternate identifier are dropped by the resolver.
	IdentAlternate IdentKind = "ALTERNATE"
)

// ResolvedIdentifier is the identifier-service response for one raw subject
// identifier.
type ResolvedIdentifier struct {
	Ident string
	Kind  IdentKind
}

// IdentityClient resolves a raw event-carried subject identifier to its
// canonical form. This is the only network call in the hot classification
// path.
type IdentityClient interface {
	Resolve(ctx context.Context, rawIdent string) (ResolvedIdentifier, error)
}

// MaritalStatus is one entry in a person's marital-status history.
type MaritalStatus struct {
	Status MaritalStatusKind
	// EffectiveDate is nil when the registry holds the entry without a valid
	// date. A divorce or separation with no effective date makes the spouse
	// relation indeterminate.
	EffectiveDate *time.Time
	// RelatedIdent is the spouse/partner identifier, empty when the registry
	// only knows partial identity data.
	RelatedIdent string
	RelatedName  string
}

type MaritalStatusKind string

const (
	MaritalMarried           MaritalStatusKind = "MARRIED"
	MaritalRegisteredPartner MaritalStatusKind = "REGISTERED_PARTNER"
	MaritalSeparated         MaritalStatusKind = "SEPARATED"
	MaritalDivorced          MaritalStatusKind = "DIVORCED"
	MaritalWidowed           MaritalStatusKind = "WIDOWED"
	MaritalUnmarried         MaritalStatusKind = "UNMARRIED"
)

// ChildRelation is one child listed on a person record. Ident is empty when
// the registry exposes only partial identity data for the child; in that case
// BirthYear may be all that is known about the child's age.
type ChildRelation struct {
	Ident       string
	Name        string
	BirthYear   int
	DateOfBirth *time.Time
	DateOfDeath *time.Time
}

// PersonRecord is the registry's current view of a person, narrowed to the
// fields this pipeline consumes.
type PersonRecord struct {
	Ident domain.PersonID
	// DateOfDeath is nil for living persons. A death event whose subject has
	// no death date on re-fetch has been retracted.
	DateOfDeath    *time.Time
	MaritalHistory []MaritalStatus
	Children       []ChildRelation
}

// PersonClient fetches the current registry record for a canonical person
// identifier.
type PersonClient interface {
	GetPerson(ctx context.Context, id domain.PersonID) (PersonRecord, error)
}
