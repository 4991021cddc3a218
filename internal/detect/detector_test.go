package detect

import (
	"testing"
	"time"

	"github.com/formwatch/formwatch/internal/domain"
)

func doc(version, hash string, effective time.Time) domain.DocumentMetadata {
	return domain.DocumentMetadata{
		Key:            domain.DocumentKey{FormID: "W-4", Jurisdiction: "federal", Agency: "irs"},
		CurrentVersion: version,
		DocumentHash:   hash,
		EffectiveDate:  effective,
	}
}

func TestDetectNewDocument(t *testing.T) {
	fetched := doc("2024.1", "abc", time.Now())
	if got := Detect(nil, fetched); got != domain.ChangeNew {
		t.Fatalf("expected new, got %s", got)
	}
}

func TestDetectIdenticalIsNone(t *testing.T) {
	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := doc("2024.1", "abc", effective)
	fetched := doc("2024.1", "abc", effective)
	if got := Detect(&stored, fetched); got != domain.ChangeNone {
		t.Fatalf("expected none, got %s", got)
	}
	// Repeated detection of the same fetch stays a no-op
	if got := Detect(&stored, fetched); got != domain.ChangeNone {
		t.Fatalf("expected none on repeat, got %s", got)
	}
}

func TestDetectVersionClassification(t *testing.T) {
	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		old  string
		new  string
		want domain.ChangeType
	}{
		{"year rollover is major", "2023.1", "2024.1", domain.ChangeMajor},
		{"year only rollover is major", "2023", "2024", domain.ChangeMajor},
		{"revision bump is revision", "2024.1", "2024.2", domain.ChangeRevision},
		{"patch bump is minor", "2024.1.1", "2024.1.2", domain.ChangeMinor},
		{"revision added is revision", "2024", "2024.1", domain.ChangeRevision},
		{"opaque token falls back to minor", "rev-A", "rev-B", domain.ChangeMinor},
		{"mixed opaque and structured is minor", "2024.1", "draft", domain.ChangeMinor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stored := doc(tc.old, "abc", effective)
			fetched := doc(tc.new, "def", effective)
			if got := Detect(&stored, fetched); got != tc.want {
				t.Fatalf("%s -> %s: expected %s, got %s", tc.old, tc.new, tc.want, got)
			}
		})
	}
}

func TestDetectSameVersionDifferentHashIsMinor(t *testing.T) {
	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := doc("2024.1", "abc", effective)
	fetched := doc("2024.1", "def", effective)
	if got := Detect(&stored, fetched); got != domain.ChangeMinor {
		t.Fatalf("expected minor, got %s", got)
	}
}

func TestDetectExpirationShiftIsMinor(t *testing.T) {
	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := doc("2024.1", "abc", effective)
	fetched := doc("2024.1", "abc", effective)
	fetched.ExpirationDate = &exp
	if got := Detect(&stored, fetched); got != domain.ChangeMinor {
		t.Fatalf("expected minor when expiration appears, got %s", got)
	}
}
