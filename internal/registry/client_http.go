package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

// HTTPIdentityClient calls the population-registry identifier service.
type HTTPIdentityClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPIdentityClient(baseURL string, client *http.Client) *HTTPIdentityClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPIdentityClient{baseURL: baseURL, client: client}
}

type identResponse struct {
	Ident string `json:"ident"`
	Kind  string `json:"kind"`
}

// Resolve looks up the canonical identifier for a raw subject identifier.
// Transport and server-side failures come back wrapped in
// sentinel.ErrUnavailable so the consumer suppresses its offset commit.
func (c *HTTPIdentityClient) Resolve(ctx context.Context, rawIdent string) (ResolvedIdentifier, error) {
	endpoint := c.baseURL + "/identities/" + url.PathEscape(rawIdent)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ResolvedIdentifier{}, fmt.Errorf("build identity request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return ResolvedIdentifier{}, fmt.Errorf("identity lookup: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ResolvedIdentifier{}, fmt.Errorf("identity lookup: %w", sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return ResolvedIdentifier{}, fmt.Errorf("identity lookup status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var body identResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ResolvedIdentifier{}, fmt.Errorf("decode identity response: %w", err)
	}

	kind := IdentAlternate
	if body.Kind == string(IdentPermanent) {
		kind = IdentPermanent
	}
	return ResolvedIdentifier{Ident: body.Ident, Kind: kind}, nil
}

// HTTPPersonClient calls the registry person-record endpoint.
type HTTPPersonClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPersonClient(baseURL string, client *http.Client) *HTTPPersonClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPPersonClient{baseURL: baseURL, client: client}
}

type personResponse struct {
	Ident       string  `json:"ident"`
	DateOfDeath *string `json:"dateOfDeath"`
	Marital     []struct {
		Status        string  `json:"status"`
		EffectiveDate *string `json:"effectiveDate"`
		RelatedIdent  string  `json:"relatedIdent"`
		RelatedName   string  `json:"relatedName"`
	} `json:"maritalHistory"`
	Children []struct {
		Ident       string  `json:"ident"`
		Name        string  `json:"name"`
		BirthYear   int     `json:"birthYear"`
		DateOfBirth *string `json:"dateOfBirth"`
		DateOfDeath *string `json:"dateOfDeath"`
	} `json:"children"`
}

// GetPerson fetches the current record for a canonical identifier.
func (c *HTTPPersonClient) GetPerson(ctx context.Context, id domain.PersonID) (PersonRecord, error) {
	endpoint := c.baseURL + "/persons/" + url.PathEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PersonRecord{}, fmt.Errorf("build person request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return PersonRecord{}, fmt.Errorf("person lookup: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return PersonRecord{}, fmt.Errorf("person lookup: %w", sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return PersonRecord{}, fmt.Errorf("person lookup status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var body personResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PersonRecord{}, fmt.Errorf("decode person response: %w", err)
	}

	record := PersonRecord{Ident: domain.PersonID(body.Ident)}
	if record.DateOfDeath, err = parseDate(body.DateOfDeath); err != nil {
		return PersonRecord{}, fmt.Errorf("parse date of death: %w", err)
	}
	for _, m := range body.Marital {
		effective, err := parseDate(m.EffectiveDate)
		if err != nil {
			return PersonRecord{}, fmt.Errorf("parse marital effective date: %w", err)
		}
		record.MaritalHistory = append(record.MaritalHistory, MaritalStatus{
			Status:        MaritalStatusKind(m.Status),
			EffectiveDate: effective,
			RelatedIdent:  m.RelatedIdent,
			RelatedName:   m.RelatedName,
		})
	}
	for _, ch := range body.Children {
		born, err := parseDate(ch.DateOfBirth)
		if err != nil {
			return PersonRecord{}, fmt.Errorf("parse child date of birth: %w", err)
		}
		died, err := parseDate(ch.DateOfDeath)
		if err != nil {
			return PersonRecord{}, fmt.Errorf("parse child date of death: %w", err)
		}
		record.Children = append(record.Children, ChildRelation{
			Ident:       ch.Ident,
			Name:        ch.Name,
			BirthYear:   ch.BirthYear,
			DateOfBirth: born,
			DateOfDeath: died,
		})
	}
	return record, nil
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
