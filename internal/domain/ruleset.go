package domain

import (
	"fmt"
	"time"
)

// RulesetStatus tracks a ruleset through its publishing lifecycle.
type RulesetStatus string

const (
	StatusDraft    RulesetStatus = "draft"
	StatusActive   RulesetStatus = "active"
	StatusArchived RulesetStatus = "archived"
)

// Ruleset is a versioned, domain/jurisdiction-scoped collection of rules.
// Exactly one ruleset may be active per (tenant, domain, jurisdiction) key;
// the repository enforces that at publish time. Once active a ruleset is
// immutable: amendments create a new draft version.
type Ruleset struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenantId"`
	Domain          string        `json:"domain"`
	Jurisdiction    string        `json:"jurisdiction"`
	RulebookVersion string        `json:"rulebookVersion"`
	RulesetVersion  string        `json:"rulesetVersion"`
	Status          RulesetStatus `json:"status"`
	Rules           []Rule        `json:"rules"`
	PublishedAt     *time.Time    `json:"publishedAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Key identifies the (domain, jurisdiction) scope a ruleset applies to.
type RulesetKey struct {
	Domain       string
	Jurisdiction string
}

func (k RulesetKey) String() string {
	return k.Domain + "/" + k.Jurisdiction
}

// Key returns the ruleset's scope key.
func (rs *Ruleset) Key() RulesetKey {
	return RulesetKey{Domain: rs.Domain, Jurisdiction: rs.Jurisdiction}
}

// Validate checks a ruleset and all contained rules, and rejects duplicate
// rule IDs within the set.
func (rs *Ruleset) Validate() error {
	if rs.Domain == "" || rs.Jurisdiction == "" {
		return fmt.Errorf("domain and jurisdiction are required")
	}
	if rs.RulesetVersion == "" {
		return fmt.Errorf("rulesetVersion is required")
	}
	switch rs.Status {
	case StatusDraft, StatusActive, StatusArchived:
	default:
		return fmt.Errorf("unknown ruleset status %q", rs.Status)
	}
	seen := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.RuleID] {
			return fmt.Errorf("duplicate rule id %q", r.RuleID)
		}
		seen[r.RuleID] = true
	}
	return nil
}
