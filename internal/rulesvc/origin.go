package rulesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Origin is the authoritative source of active rulesets the cache refills
// from. In single-node deployments this is the local repository; nodes that
// evaluate only can point at a remote publishing service instead.
type Origin interface {
	FetchActive(ctx context.Context, tenantID string, key domain.RulesetKey) (*domain.Ruleset, error)
}

// RepositoryOrigin serves rulesets straight from the repository.
type RepositoryOrigin struct {
	repo domain.Repository
}

// NewRepositoryOrigin creates an origin backed by the local repository.
func NewRepositoryOrigin(repo domain.Repository) *RepositoryOrigin {
	return &RepositoryOrigin{repo: repo}
}

// FetchActive loads the active ruleset for a scope.
func (o *RepositoryOrigin) FetchActive(ctx context.Context, tenantID string, key domain.RulesetKey) (*domain.Ruleset, error) {
	return o.repo.GetActiveRuleset(ctx, tenantID, key)
}

// HTTPOrigin fetches active rulesets from a remote Kestrel instance over
// its public API.
type HTTPOrigin struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOrigin creates an origin that fetches over HTTP with a bounded
// per-request timeout.
func NewHTTPOrigin(baseURL string, timeout time.Duration) *HTTPOrigin {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPOrigin{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchActive requests GET /api/v1/rules/active for the scope.
func (o *HTTPOrigin) FetchActive(ctx context.Context, tenantID string, key domain.RulesetKey) (*domain.Ruleset, error) {
	u := fmt.Sprintf("%s/api/v1/rules/active?domain=%s&jurisdiction=%s",
		o.baseURL, url.QueryEscape(key.Domain), url.QueryEscape(key.Jurisdiction))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("origin fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("origin returned status %d for %s", resp.StatusCode, key.String())
	}

	var rs domain.Ruleset
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
		return nil, fmt.Errorf("origin response decode failed: %w", err)
	}
	return &rs, nil
}
