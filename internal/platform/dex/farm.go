package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PerpChecker reports whether the hedge venue lists a perpetual for a token.
type PerpChecker interface {
	HasPerp(ctx context.Context, token string) (bool, error)
}

// FarmSource implements domain.FarmSource. The farmable pool set comes from
// config, current yields from the farm analytics API, and perpetual listings
// from the hedge venue.
type FarmSource struct {
	apiURL     string
	pairs      []domain.FarmPair
	perps      PerpChecker
	httpClient *http.Client
}

// NewFarmSource creates a FarmSource.
//
// apiURL is the analytics endpoint root; pair APYs are read from
// GET {apiURL}/pools/{pool}.
func NewFarmSource(apiURL string, pairs []domain.FarmPair, perps PerpChecker) *FarmSource {
	return &FarmSource{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		pairs:      pairs,
		perps:      perps,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Pairs returns the configured farmable pools.
func (f *FarmSource) Pairs(ctx context.Context) ([]domain.FarmPair, error) {
	out := make([]domain.FarmPair, len(f.pairs))
	copy(out, f.pairs)
	return out, nil
}

// APY fetches the pool's current annualized yield as a fraction (0.25 for
// 25%).
func (f *FarmSource) APY(ctx context.Context, pair domain.FarmPair) (float64, error) {
	endpoint := f.apiURL + "/pools/" + url.PathEscape(pair.Pool)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("dex: create apy request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dex: apy %s: %w: %v", pair.Pool, domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("dex: read apy response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("dex: apy %s: HTTP %d", pair.Pool, resp.StatusCode)
	}

	var payload struct {
		APY float64 `json:"apy"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("dex: decode apy: %w", err)
	}
	return payload.APY, nil
}

// HasPerp delegates to the hedge venue's contract listings.
func (f *FarmSource) HasPerp(ctx context.Context, token string) (bool, error) {
	return f.perps.HasPerp(ctx, token)
}

var _ domain.FarmSource = (*FarmSource)(nil)
