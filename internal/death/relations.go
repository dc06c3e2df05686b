package death

import (
	"time"

	"lifeline/internal/registry"
)

// Pure affected-party rules over an already-fetched person record. These
// cannot fail; anything the registry left ambiguous is decided here, once.

// eligibilityCutoff is the first day of the month following the death. The
// dependent-child age test is evaluated as of this date.
func eligibilityCutoff(dateOfDeath time.Time) time.Time {
	year, month, _ := dateOfDeath.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// EligibleChildren returns the deceased's children with no recorded death who
// are under ageLimitYears as of the eligibility cutoff. Children known only by
// birth year are aged by year arithmetic; that is all the registry gave us.
func EligibleChildren(rec registry.PersonRecord, dateOfDeath time.Time, ageLimitYears int) []registry.ChildRelation {
	cutoff := eligibilityCutoff(dateOfDeath)
	var eligible []registry.ChildRelation
	for _, child := range rec.Children {
		if child.DateOfDeath != nil {
			continue
		}
		if underAge(child, cutoff, ageLimitYears) {
			eligible = append(eligible, child)
		}
	}
	return eligible
}

func underAge(child registry.ChildRelation, cutoff time.Time, ageLimitYears int) bool {
	if child.DateOfBirth != nil {
		return child.DateOfBirth.AddDate(ageLimitYears, 0, 0).After(cutoff)
	}
	if child.BirthYear > 0 {
		return cutoff.Year()-child.BirthYear < ageLimitYears
	}
	return false
}

// SelectSpouse picks the deceased's spouse or partner from the marital-status
// history, if any. Rules:
//   - the most recent entry (latest effective date) decides the current state;
//   - a divorce or separation entry with no valid effective date makes the
//     relation indeterminate and excludes the spouse entirely;
//   - only a current MARRIED or REGISTERED_PARTNER state yields a spouse.
func SelectSpouse(history []registry.MaritalStatus) (registry.MaritalStatus, bool) {
	if len(history) == 0 {
		return registry.MaritalStatus{}, false
	}

	for _, entry := range history {
		severing := entry.Status == registry.MaritalDivorced || entry.Status == registry.MaritalSeparated
		if severing && entry.EffectiveDate == nil {
			return registry.MaritalStatus{}, false
		}
	}

	latest := history[0]
	for _, entry := range history[1:] {
		if after(entry.EffectiveDate, latest.EffectiveDate) {
			latest = entry
		}
	}

	if latest.Status == registry.MaritalMarried || latest.Status == registry.MaritalRegisteredPartner {
		return latest, true
	}
	return registry.MaritalStatus{}, false
}

// after treats a nil date as earliest, so dated entries always win over
// undated ones.
func after(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
