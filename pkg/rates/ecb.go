// pkg/rates/ecb.go
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultFeedURL is the ECB SDMX data endpoint for daily reference
// exchange rates
const DefaultFeedURL = "https://data-api.ecb.europa.eu/service/data/EXR"

// defaultCurrencies are the quote currencies fetched when the caller
// does not supply its own list
var defaultCurrencies = []string{"USD", "GBP", "CHF", "JPY", "SEK", "NOK", "DKK", "PLN", "CZK", "HUF"}

// FeedClient fetches historical daily exchange rates from the ECB
// statistics API. Rates come back as foreign units per 1 EUR, which is
// exactly the table convention.
type FeedClient struct {
	baseURL    string
	client     *http.Client
	currencies []string
	logger     *zap.Logger
}

// NewFeedClient creates an ECB feed client. baseURL == "" uses the
// public endpoint.
func NewFeedClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*FeedClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if baseURL == "" {
		baseURL = DefaultFeedURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &FeedClient{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		currencies: defaultCurrencies,
		logger:     logger.Named("ecb"),
	}, nil
}

// WithCurrencies overrides the quote currencies fetched per sync
func (c *FeedClient) WithCurrencies(currencies []string) *FeedClient {
	if len(currencies) > 0 {
		c.currencies = currencies
	}
	return c
}

// sdmxResponse mirrors the subset of the SDMX-JSON payload we consume
type sdmxResponse struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]*float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
	Structure struct {
		Dimensions struct {
			Observation []struct {
				ID     string `json:"id"`
				Values []struct {
					ID string `json:"id"`
				} `json:"values"`
			} `json:"observation"`
		} `json:"dimensions"`
	} `json:"structure"`
}

// FetchRates pulls daily rates for every configured currency between
// start and end (inclusive), returning date->currency->rate. Currencies
// whose series fails to download are skipped with a warning rather than
// failing the whole sync.
func (c *FeedClient) FetchRates(ctx context.Context, start, end time.Time) (map[string]map[string]float64, error) {
	out := make(map[string]map[string]float64)
	var fetched int

	for _, ccy := range c.currencies {
		series, err := c.fetchSeries(ctx, ccy, start, end)
		if err != nil {
			c.logger.Warn("Failed to fetch rate series",
				zap.String("currency", ccy),
				zap.Error(err))
			continue
		}

		for date, rate := range series {
			if _, ok := out[date]; !ok {
				out[date] = make(map[string]float64)
			}
			out[date][ccy] = rate
		}
		fetched++
	}

	if fetched == 0 {
		return nil, fmt.Errorf("no currency series could be fetched from %s", c.baseURL)
	}

	c.logger.Info("Fetched exchange rates",
		zap.Int("currencies", fetched),
		zap.Int("dates", len(out)))

	return out, nil
}

// fetchSeries downloads one currency's daily series as date->rate
func (c *FeedClient) fetchSeries(ctx context.Context, currency string, start, end time.Time) (map[string]float64, error) {
	// Series key: daily frequency, quote currency vs EUR, spot rate
	url := fmt.Sprintf("%s/D.%s.EUR.SP00.A?startPeriod=%s&endPeriod=%s&format=jsondata",
		c.baseURL, currency, start.Format(dateLayout), end.Format(dateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return map[string]float64{}, nil // no observations in range
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var payload sdmxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode feed payload: %w", err)
	}

	return decodeSeries(&payload)
}

// decodeSeries flattens the SDMX observation structure into date->rate
func decodeSeries(payload *sdmxResponse) (map[string]float64, error) {
	var dates []string
	for _, dim := range payload.Structure.Dimensions.Observation {
		if dim.ID == "TIME_PERIOD" {
			for _, v := range dim.Values {
				dates = append(dates, v.ID)
			}
		}
	}
	if len(dates) == 0 {
		return map[string]float64{}, nil
	}

	out := make(map[string]float64, len(dates))
	for _, ds := range payload.DataSets {
		for _, series := range ds.Series {
			for idx, obs := range series.Observations {
				if len(obs) == 0 || obs[0] == nil {
					continue
				}
				i, err := strconv.Atoi(idx)
				if err != nil || i < 0 || i >= len(dates) {
					continue
				}
				out[dates[i]] = *obs[0]
			}
		}
	}

	return out, nil
}
