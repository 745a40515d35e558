package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

// PolygonSource pulls historical trades from the polygon.io v3 REST API.
// Trade prints carry no aggressor flag, so the side is inferred with the
// tick rule: upticks count as ask-side, downticks as bid-side, and
// unchanged prices keep the previous side.
type PolygonSource struct {
	apiKey  string
	baseURL string
	limit   int
	client  *http.Client
}

func NewPolygonSource(apiKey, baseURL string, limit int) (*PolygonSource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("polygon source: api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}
	if limit <= 0 || limit > 50000 {
		limit = 50000
	}
	return &PolygonSource{
		apiKey:  apiKey,
		baseURL: baseURL,
		limit:   limit,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// FetchTicks pages through /v3/trades for [from, to).
func (s *PolygonSource) FetchTicks(ctx context.Context, symbol string, from, to time.Time) ([]types.Tick, error) {
	endpoint := fmt.Sprintf("%s/v3/trades/%s?timestamp.gte=%d&timestamp.lt=%d&order=asc&limit=%d",
		s.baseURL, url.PathEscape(symbol), from.UnixNano(), to.UnixNano(), s.limit)

	var ticks []types.Tick
	prevPrice := 0.0
	prevSide := types.SideAsk
	for endpoint != "" {
		body, err := s.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		results := gjson.GetBytes(body, "results")
		results.ForEach(func(_, item gjson.Result) bool {
			price := item.Get("price").Float()
			size := item.Get("size").Int()
			ns := item.Get("participant_timestamp").Int()
			if ns == 0 {
				ns = item.Get("sip_timestamp").Int()
			}
			if price <= 0 || size <= 0 || ns == 0 {
				return true
			}
			side := prevSide
			if prevPrice != 0 {
				if price > prevPrice {
					side = types.SideAsk
				} else if price < prevPrice {
					side = types.SideBid
				}
			}
			prevPrice = price
			prevSide = side
			ticks = append(ticks, types.Tick{
				Timestamp: time.Unix(0, ns),
				Symbol:    symbol,
				Price:     price,
				Volume:    size,
				Side:      side,
			})
			return true
		})

		endpoint = gjson.GetBytes(body, "next_url").String()
		if endpoint != "" {
			logger.Debugf("polygon source: following next page, %d ticks so far", len(ticks))
		}
	}
	logger.Infof("polygon source: fetched %d ticks for %s", len(ticks), symbol)
	return ticks, nil
}

func (s *PolygonSource) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("polygon source: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polygon source: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polygon source: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polygon source: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (" + strconv.Itoa(len(s)) + " bytes)"
}
