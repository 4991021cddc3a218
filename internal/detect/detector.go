// Package detect classifies the delta between a stored document and a
// freshly fetched one. Detection is pure: no I/O, no clock reads.
package detect

import (
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/formwatch/formwatch/internal/domain"
)

// versionToken is the accepted grammar for form version tokens:
// YEAR[.REVISION[.PATCH]], e.g. "2024", "2024.1", "2024.1.2".
// Tokens outside this grammar are compared as opaque strings.
var versionToken = regexp.MustCompile(`^\d{4}(\.\d+){0,2}$`)

// Detect classifies how fetched differs from stored.
//
// Ordering of the rules matters: absence wins over everything, exact
// equality wins over version comparison, and structural version comparison
// wins over the hash/date fallback.
func Detect(stored *domain.DocumentMetadata, fetched domain.DocumentMetadata) domain.ChangeType {
	if stored == nil {
		return domain.ChangeNew
	}

	if stored.CurrentVersion == fetched.CurrentVersion &&
		stored.DocumentHash == fetched.DocumentHash &&
		stored.EffectiveDate.Equal(fetched.EffectiveDate) &&
		equalExpiration(stored.ExpirationDate, fetched.ExpirationDate) {
		return domain.ChangeNone
	}

	if stored.CurrentVersion != fetched.CurrentVersion {
		return classifyVersionChange(stored.CurrentVersion, fetched.CurrentVersion)
	}

	// Same version token but hash or dates moved
	return domain.ChangeMinor
}

func classifyVersionChange(old, new string) domain.ChangeType {
	if !versionToken.MatchString(old) || !versionToken.MatchString(new) {
		// Opaque tokens carry no structure to rank the change by
		return domain.ChangeMinor
	}
	oldV, errOld := semver.NewVersion(old)
	newV, errNew := semver.NewVersion(new)
	if errOld != nil || errNew != nil {
		return domain.ChangeMinor
	}
	if oldV.Major() != newV.Major() {
		return domain.ChangeMajor
	}
	if oldV.Minor() != newV.Minor() {
		return domain.ChangeRevision
	}
	return domain.ChangeMinor
}

func equalExpiration(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
