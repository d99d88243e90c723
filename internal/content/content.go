// Package content exposes the tier each content item requires. The
// access layer treats this as opaque input from the content collaborator.
package content

import (
	"context"
	"strings"

	"github.com/clearancehq/tiergate/internal/tier"
)

// Source resolves the required tier for a content slug. Unknown slugs
// resolve to the source's default tier rather than an error, so a typo'd
// URL cannot open a hole.
type Source interface {
	RequiredTier(ctx context.Context, slug string) (tier.Tier, error)
}

// StaticSource resolves tiers from fixed rules: exact slugs first, then
// prefix rules, then the default.
type StaticSource struct {
	exact       map[string]tier.Tier
	prefixes    []prefixRule
	defaultTier tier.Tier
}

type prefixRule struct {
	prefix string
	tier   tier.Tier
}

// NewStaticSource creates a source with the given exact slug mapping and
// default tier for unmatched slugs.
func NewStaticSource(exact map[string]tier.Tier, defaultTier tier.Tier) *StaticSource {
	if !defaultTier.Valid() {
		defaultTier = tier.Private
	}
	return &StaticSource{exact: exact, defaultTier: defaultTier}
}

// AddPrefix adds a prefix rule, checked after exact matches in the order
// added.
func (s *StaticSource) AddPrefix(prefix string, t tier.Tier) *StaticSource {
	s.prefixes = append(s.prefixes, prefixRule{prefix: prefix, tier: t})
	return s
}

// RequiredTier implements Source.
func (s *StaticSource) RequiredTier(_ context.Context, slug string) (tier.Tier, error) {
	if t, ok := s.exact[slug]; ok {
		return t, nil
	}
	for _, rule := range s.prefixes {
		if strings.HasPrefix(slug, rule.prefix) {
			return rule.tier, nil
		}
	}
	return s.defaultTier, nil
}
