package security

import (
	"fmt"
	"strings"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/featureflags"
	"github.com/formwatch/formwatch/internal/security/auth"
)

// Feature names gated by client tier
const (
	FeatureManualRefresh = "manual_refresh"
	FeatureWebhooks      = "webhooks"
	FeatureAnalytics     = "analytics"
	FeatureFileUploads   = "file_uploads"
)

// Tier names, lowest to highest
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// tierFeatures maps tiers to their feature entitlements
var tierFeatures = map[string][]string{
	TierFree: {
		FeatureFileUploads,
	},
	TierPro: {
		FeatureFileUploads,
		FeatureManualRefresh,
		FeatureWebhooks,
	},
	TierEnterprise: {
		FeatureFileUploads,
		FeatureManualRefresh,
		FeatureWebhooks,
		FeatureAnalytics,
	},
}

// Authorizer answers tier and jurisdiction questions about a client.
// Privileged handlers consult it before honoring the request.
type Authorizer struct{}

// NewAuthorizer creates an authorizer
func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// HasFeature reports whether the client's tier includes the feature. An
// environment flag (FLAG_<FEATURE>) can force a feature on for every
// tier, which operations use for staged rollouts.
func (a *Authorizer) HasFeature(claims *auth.Claims, feature string) bool {
	if featureflags.Enabled(feature) {
		return true
	}
	if claims == nil {
		return false
	}
	for _, f := range tierFeatures[strings.ToLower(claims.Tier)] {
		if f == feature {
			return true
		}
	}
	return false
}

// HasJurisdictionAccess reports whether the client may act on documents
// of the given jurisdiction. Federal documents are open to every client;
// state-level access follows the granted list, with "*" meaning all.
func (a *Authorizer) HasJurisdictionAccess(claims *auth.Claims, code string) bool {
	if strings.EqualFold(code, "federal") {
		return true
	}
	if claims == nil {
		return false
	}
	for _, j := range claims.Jurisdictions {
		if j == "*" || strings.EqualFold(j, code) {
			return true
		}
	}
	return false
}

// RequireFeature returns ErrAccessDenied unless the feature is available
func (a *Authorizer) RequireFeature(claims *auth.Claims, feature string) error {
	if !a.HasFeature(claims, feature) {
		return fmt.Errorf("feature %s: %w", feature, domain.ErrAccessDenied)
	}
	return nil
}

// RequireJurisdiction returns ErrAccessDenied unless access is granted
func (a *Authorizer) RequireJurisdiction(claims *auth.Claims, code string) error {
	if !a.HasJurisdictionAccess(claims, code) {
		return fmt.Errorf("jurisdiction %s: %w", code, domain.ErrAccessDenied)
	}
	return nil
}
