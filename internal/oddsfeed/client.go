// Package oddsfeed is the external odds-provider HTTP client. It follows
// the request-building shape of the teacher's pkg/oddsapi.Client
// (apiKey query param, endpoint+params, read-body-then-check-status) but
// targets the odds-format and quota-header behaviour of
// original_source/backend/app/integrations/odds_api.py: american odds
// format, a 20s timeout, and x-requests-* header capture.
package oddsfeed

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
)

// Client talks to the-odds-api.com (or a compatible base URL).
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client against baseURL, timing requests out at 20s the
// way odds_api.py's fetch_odds does.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Event mirrors the-odds-api.com's /sports/{sport}/odds response shape.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime string      `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

type Bookmaker struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LastUpdate string   `json:"last_update"`
	Markets    []Market `json:"markets"`
}

type Market struct {
	Key        string    `json:"key"`
	LastUpdate string    `json:"last_update"`
	Outcomes   []Outcome `json:"outcomes"`
}

type Outcome struct {
	Name  string   `json:"name"`
	Price int      `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// QuotaInfo is the header snapshot + capture time fetch_odds returns
// alongside events.
type QuotaInfo struct {
	Headers   map[string]string
	FetchedAt time.Time
}

// FetchOdds calls GET /sports/{sportKey}/odds with oddsFormat=american,
// matching fetch_odds's param set exactly (apiKey, regions, markets,
// oddsFormat).
func (c *Client) FetchOdds(sportKey string, markets []string, regions string) ([]Event, QuotaInfo, error) {
	if c.apiKey == "" {
		return nil, QuotaInfo{}, apperr.New(apperr.UnauthorizedConfig, "ODDS_API_KEY is required for ingestion endpoints")
	}

	reqURL, err := url.Parse(fmt.Sprintf("%s/sports/%s/odds", c.baseURL, sportKey))
	if err != nil {
		return nil, QuotaInfo{}, apperr.Wrap(apperr.Internal, "parse odds feed url", err)
	}
	q := reqURL.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("regions", regions)
	q.Set("markets", strings.Join(markets, ","))
	q.Set("oddsFormat", "american")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, QuotaInfo{}, apperr.Wrap(apperr.Internal, "build odds feed request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, QuotaInfo{}, apperr.Wrap(apperr.UpstreamFailure, "odds feed request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, QuotaInfo{}, apperr.Wrap(apperr.UpstreamFailure, "read odds feed response", err)
	}

	fetchedAt := time.Now().UTC()
	quota := QuotaInfo{Headers: map[string]string{}, FetchedAt: fetchedAt}
	for key := range resp.Header {
		if strings.HasPrefix(strings.ToLower(key), "x-requests-") {
			quota.Headers[key] = resp.Header.Get(key)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, quota, apperr.Wrap(apperr.UpstreamFailure, fmt.Sprintf("odds feed returned status %d", resp.StatusCode), fmt.Errorf("%s", string(body)))
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, quota, apperr.Wrap(apperr.UpstreamFailure, "parse odds feed response", err)
	}
	return events, quota, nil
}
