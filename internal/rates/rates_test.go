package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tezgahpos/internal/cache"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<Tarih_Date Tarih="01.09.2026" Date="09/01/2026">
  <Currency CrossOrder="0" Kod="USD" CurrencyCode="USD">
    <Unit>1</Unit>
    <ForexBuying>41.10</ForexBuying>
    <ForexSelling>41.25</ForexSelling>
  </Currency>
  <Currency CrossOrder="1" Kod="EUR" CurrencyCode="EUR">
    <Unit>1</Unit>
    <ForexBuying>47.80</ForexBuying>
    <ForexSelling>48.05</ForexSelling>
  </Currency>
  <Currency CrossOrder="2" Kod="JPY" CurrencyCode="JPY">
    <Unit>100</Unit>
    <ForexSelling>27.90</ForexSelling>
  </Currency>
  <Currency CrossOrder="3" Kod="GBP" CurrencyCode="GBP">
    <Unit>1</Unit>
    <ForexSelling></ForexSelling>
  </Currency>
</Tarih_Date>`

func TestParseFeedKeepsTrackedCurrencies(t *testing.T) {
	rates, err := parseFeed([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}

	if len(rates) != 2 {
		t.Fatalf("got %d rates, want 2: %v", len(rates), rates)
	}
	if !rates["USD"].Equal(decimal.RequireFromString("41.25")) {
		t.Fatalf("USD = %s, want 41.25", rates["USD"])
	}
	if !rates["EUR"].Equal(decimal.RequireFromString("48.05")) {
		t.Fatalf("EUR = %s, want 48.05", rates["EUR"])
	}
	if _, ok := rates["JPY"]; ok {
		t.Fatalf("JPY should not be tracked")
	}
	if _, ok := rates["GBP"]; ok {
		t.Fatalf("GBP row with empty selling rate should be skipped")
	}
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	if _, err := parseFeed([]byte("not xml at all")); err == nil {
		t.Fatalf("expected an error for malformed feed")
	}
	if _, err := parseFeed([]byte(`<Tarih_Date></Tarih_Date>`)); err == nil {
		t.Fatalf("expected an error for a feed with no usable rates")
	}
}

type stubFetcher struct {
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (f *stubFetcher) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	f.calls++
	return f.rates, f.err
}

type stubSaver struct {
	saved map[string]decimal.Decimal
}

func (s *stubSaver) SaveExchangeRate(ctx context.Context, currency string, rate decimal.Decimal) error {
	if s.saved == nil {
		s.saved = make(map[string]decimal.Decimal)
	}
	s.saved[currency] = rate
	return nil
}

type memoryCache struct {
	rates map[string]decimal.Decimal
}

func (m *memoryCache) Get(context.Context) (map[string]decimal.Decimal, bool, error) {
	return m.rates, m.rates != nil, nil
}

func (m *memoryCache) Set(_ context.Context, rates map[string]decimal.Decimal, _ time.Duration) error {
	m.rates = rates
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestUpdaterFetchesSavesAndCaches(t *testing.T) {
	fetcher := &stubFetcher{rates: map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("41.25"),
	}}
	saver := &stubSaver{}
	rateCache := &memoryCache{}

	u := NewUpdater(fetcher, saver, rateCache, time.Hour, quietLogger())
	rates, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !rates["USD"].Equal(decimal.RequireFromString("41.25")) {
		t.Fatalf("returned USD = %s", rates["USD"])
	}
	if !saver.saved["USD"].Equal(decimal.RequireFromString("41.25")) {
		t.Fatalf("saved USD = %s", saver.saved["USD"])
	}
	if rateCache.rates == nil {
		t.Fatalf("rates were not cached")
	}
}

func TestUpdaterPrefersCache(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("feed down")}
	saver := &stubSaver{}
	rateCache := &memoryCache{rates: map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("48.05"),
	}}

	u := NewUpdater(fetcher, saver, rateCache, time.Hour, quietLogger())
	if _, err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run should serve from cache: %v", err)
	}

	if fetcher.calls != 0 {
		t.Fatalf("fetcher called %d times, want 0", fetcher.calls)
	}
	if !saver.saved["EUR"].Equal(decimal.RequireFromString("48.05")) {
		t.Fatalf("cached rate was not applied")
	}
}

func TestUpdaterPropagatesFetchErrors(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("feed down")}
	u := NewUpdater(fetcher, &stubSaver{}, cache.NoopRateCache{}, time.Hour, quietLogger())

	if _, err := u.Run(context.Background()); err == nil {
		t.Fatalf("expected fetch error to surface")
	}
}
