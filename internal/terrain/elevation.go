package terrain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPQuerier is the default ElevationQuerier, a thin JSON client over a
// point-elevation HTTP endpoint (spec.md §4.5 "online fallback").
type HTTPQuerier struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPQuerier returns an HTTPQuerier with a bounded default timeout.
func NewHTTPQuerier(baseURL string) *HTTPQuerier {
	return &HTTPQuerier{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 3 * time.Second},
	}
}

type elevationResponse struct {
	Value float64 `json:"value"`
}

// noDataSentinel is the provider's magic "no coverage here" value.
const noDataSentinel = -999999.0

// Query fetches a single-point elevation. ok is false both on transport
// failure and on the provider's explicit no-data sentinel.
func (q *HTTPQuerier) Query(ctx context.Context, lat, lon float64) (elevationM float64, ok bool, err error) {
	url := fmt.Sprintf("%s?x=%f&y=%f&units=meters", q.BaseURL, lon, lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := q.Client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("elevation query: status %d", resp.StatusCode)
	}

	var parsed elevationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false, err
	}
	if parsed.Value <= noDataSentinel {
		return 0, false, nil
	}
	return parsed.Value, true, nil
}
