package currency

import "testing"

// fixture reproduces a small slice of the BIS/FRED series sufficient to
// exercise the documented normalization scenarios (§8 Scenario 3).
func fixtureClient() *Client {
	c := New(0)
	c.LoadFrom(
		[]Rate{
			{Year: 1994, CountryCode: "US", CurrencyCode: "USD", ExchangeRate: 1.0},
			{Year: 2017, CountryCode: "US", CurrencyCode: "USD", ExchangeRate: 1.0},
			{Year: 2022, CountryCode: "US", CurrencyCode: "USD", ExchangeRate: 1.0},
			{Year: 1980, CountryCode: "FR", CurrencyCode: "EUR", ExchangeRate: 0.5632145},
		},
		[]Deflator{
			{Year: 1980, Value: 48.328},
			{Year: 1994, Value: 65.565173},
			{Year: 2017, Value: 100.0},
			{Year: 2022, Value: 117.966257},
		},
	)
	return c
}

func TestNormalize(t *testing.T) {
	c := fixtureClient()

	cases := []struct {
		year     int
		country  string
		currency string
		amount   float64
		want     float64
	}{
		{1994, "US", "USD", 50.00, 76.26},
		{2017, "US", "USD", 100.00, 100.00},
		{2022, "US", "USD", 100.00, 84.77},
		{1980, "FR", "EUR", 100.00, 367.39},
	}

	for _, tc := range cases {
		got, err := c.Normalize(tc.year, tc.country, tc.currency, tc.amount)
		if err != nil {
			t.Fatalf("Normalize(%d, %q, %q, %v) returned error: %v", tc.year, tc.country, tc.currency, tc.amount, err)
		}
		if got != tc.want {
			t.Errorf("Normalize(%d, %q, %q, %v) = %v, want %v", tc.year, tc.country, tc.currency, tc.amount, got, tc.want)
		}
	}
}

func TestNormalizeMissingExchangeRate(t *testing.T) {
	c := fixtureClient()
	if _, err := c.Normalize(1994, "ZZ", "USD", 10); err == nil {
		t.Fatal("expected ErrMissingRate for unknown country, got nil")
	}
}

func TestNormalizeMissingDeflator(t *testing.T) {
	c := fixtureClient()
	c.rates[rateKey{2099, "US", "USD"}] = 1.0
	if _, err := c.Normalize(2099, "US", "USD", 10); err == nil {
		t.Fatal("expected ErrMissingRate for unknown year, got nil")
	}
}
