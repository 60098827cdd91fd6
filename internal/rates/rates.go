// Package rates fetches daily TL exchange rates from the central bank feed
// and stores them as settings so purchase prices in foreign currencies can
// be converted at sell time.
package rates

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tezgahpos/internal/cache"
)

const DefaultFeedURL = "https://www.tcmb.gov.tr/kurlar/today.xml"

// currencies we track. Everything else in the feed is ignored.
var trackedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
}

type feedDocument struct {
	XMLName    xml.Name       `xml:"Tarih_Date"`
	Currencies []feedCurrency `xml:"Currency"`
}

type feedCurrency struct {
	Code         string `xml:"Kod,attr"`
	ForexSelling string `xml:"ForexSelling"`
}

// Client fetches the rate feed over HTTP.
type Client struct {
	httpClient *http.Client
	url        string
}

func NewClient(url string) *Client {
	if url == "" {
		url = DefaultFeedURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        url,
	}
}

// FetchRates returns the forex selling rate per tracked currency code.
func (c *Client) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read rate feed: %w", err)
	}

	return parseFeed(body)
}

func parseFeed(body []byte) (map[string]decimal.Decimal, error) {
	var doc feedDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse rate feed: %w", err)
	}

	rates := make(map[string]decimal.Decimal)
	for _, cur := range doc.Currencies {
		code := strings.ToUpper(strings.TrimSpace(cur.Code))
		if !trackedCurrencies[code] {
			continue
		}
		raw := strings.TrimSpace(cur.ForexSelling)
		if raw == "" {
			continue
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil || rate.Sign() <= 0 {
			continue
		}
		rates[code] = rate
	}

	if len(rates) == 0 {
		return nil, fmt.Errorf("parse rate feed: no usable rates")
	}
	return rates, nil
}

// RateSaver is the slice of the service layer the updater needs.
type RateSaver interface {
	SaveExchangeRate(ctx context.Context, currency string, rate decimal.Decimal) error
}

// Fetcher lets tests swap the HTTP client out.
type Fetcher interface {
	FetchRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Updater refreshes stored exchange rates, consulting the cache first so
// repeated refreshes within the TTL do not hit the feed.
type Updater struct {
	fetcher Fetcher
	saver   RateSaver
	cache   cache.RateCache
	ttl     time.Duration
	logger  *logrus.Logger
}

func NewUpdater(fetcher Fetcher, saver RateSaver, rateCache cache.RateCache, ttl time.Duration, logger *logrus.Logger) *Updater {
	if rateCache == nil {
		rateCache = cache.NoopRateCache{}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Updater{fetcher: fetcher, saver: saver, cache: rateCache, ttl: ttl, logger: logger}
}

// Run refreshes the rates once and returns the rates it applied.
func (u *Updater) Run(ctx context.Context) (map[string]decimal.Decimal, error) {
	rates, hit, err := u.cache.Get(ctx)
	if err != nil {
		u.logger.WithError(err).Warn("rate cache read failed, fetching from feed")
	}

	fromCache := hit && len(rates) > 0
	if !fromCache {
		rates, err = u.fetcher.FetchRates(ctx)
		if err != nil {
			return nil, err
		}
	}

	for currency, rate := range rates {
		if err := u.saver.SaveExchangeRate(ctx, currency, rate); err != nil {
			return nil, fmt.Errorf("save %s rate: %w", currency, err)
		}
	}

	if !fromCache {
		if err := u.cache.Set(ctx, rates, u.ttl); err != nil {
			u.logger.WithError(err).Warn("rate cache write failed")
		}
	}

	u.logger.WithFields(logrus.Fields{
		"currencies": len(rates),
		"cached":     fromCache,
	}).Info("exchange rates refreshed")
	return rates, nil
}
