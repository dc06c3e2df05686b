package registry

import (
	"context"
	"time"

	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

// MockIdentityClient serves deterministic resolutions from a fixed map, with
// a configurable latency to mimic real-world calls. Raw identifiers missing
// from the map resolve to themselves as permanent identifiers.
type MockIdentityClient struct {
	Latency     time.Duration
	Resolutions map[string]ResolvedIdentifier
}

func (c MockIdentityClient) Resolve(_ context.Context, rawIdent string) (ResolvedIdentifier, error) {
	time.Sleep(c.Latency)
	if r, ok := c.Resolutions[rawIdent]; ok {
		return r, nil
	}
	return ResolvedIdentifier{Ident: rawIdent, Kind: IdentPermanent}, nil
}

// MockPersonClient serves person records from a fixed map. FailWith, when
// set, makes every lookup fail with that error.
type MockPersonClient struct {
	Latency  time.Duration
	FailWith error
	Persons  map[domain.PersonID]PersonRecord
}

func (c MockPersonClient) GetPerson(_ context.Context, id domain.PersonID) (PersonRecord, error) {
	time.Sleep(c.Latency)
	if c.FailWith != nil {
		return PersonRecord{}, c.FailWith
	}
	if rec, ok := c.Persons[id]; ok {
		return rec, nil
	}
	return PersonRecord{}, sentinel.ErrNotFound
}
