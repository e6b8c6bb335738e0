package apiexec

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/adaptlight/lampcore/internal/lamp/lamperr"
)

// roundTripFunc lets a test stub http.RoundTripper without a real listener.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestExecutor(t *testing.T, body string) *Executor {
	t.Helper()
	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(body), nil
		}),
	}
	return New(Config{HTTPClient: client, RatePerSecond: 1000, Burst: 1000}, nil)
}

func TestCall_UnknownAPIReturnsNotFound(t *testing.T) {
	exec := New(Config{RatePerSecond: 1000, Burst: 1000}, nil)
	_, err := exec.Call(context.Background(), "nonsense", nil)
	if err == nil {
		t.Fatalf("expected an error for an unregistered API")
	}
	if kind, ok := lamperr.KindOf(err); !ok || kind != lamperr.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v (ok=%v)", kind, ok)
	}
}

func TestCall_Time_NoNetworkRequired(t *testing.T) {
	exec := New(Config{RatePerSecond: 1000, Burst: 1000}, nil)
	result, err := exec.Call(context.Background(), "time", map[string]any{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	data, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", result)
	}
	if _, ok := data["hour"]; !ok {
		t.Fatalf("expected an hour field, got %v", data)
	}
}

func TestCall_Random_RangeRespected(t *testing.T) {
	exec := New(Config{RatePerSecond: 1000, Burst: 1000}, nil)
	result, err := exec.Call(context.Background(), "random", map[string]any{"min": 5.0, "max": 6.0})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	data := result.(map[string]any)
	v := data["value"].(float64)
	if v < 5.0 || v > 6.0 {
		t.Fatalf("expected value in [5,6], got %v", v)
	}
}

func TestCall_Weather_ParsesWttrResponse(t *testing.T) {
	exec := newTestExecutor(t, `{"current_condition":[{"temp_F":"72","temp_C":"22","humidity":"40","windspeedMiles":"5","weatherDesc":[{"value":"Light rain"}]}]}`)
	result, err := exec.Call(context.Background(), "weather", map[string]any{"location": "Seattle"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	data := result.(map[string]any)
	if data["condition"] != "rainy" {
		t.Fatalf("expected condition rainy, got %v", data["condition"])
	}
	if data["temp_c"].(float64) != 22 {
		t.Fatalf("expected temp_c 22, got %v", data["temp_c"])
	}
}

func TestCall_Weather_MissingLocationParam(t *testing.T) {
	exec := newTestExecutor(t, `{}`)
	_, err := exec.Call(context.Background(), "weather", map[string]any{})
	if err == nil {
		t.Fatalf("expected an error when location is missing")
	}
}

func TestCall_Crypto_ParsesCoinGeckoResponse(t *testing.T) {
	exec := newTestExecutor(t, `{"bitcoin":{"usd":65000,"usd_24h_change":1.5,"usd_market_cap":1.2e12,"usd_24h_vol":3.4e10}}`)
	result, err := exec.Call(context.Background(), "crypto", map[string]any{"coin": "bitcoin"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	data := result.(map[string]any)
	if data["price_usd"].(float64) != 65000 {
		t.Fatalf("expected price_usd 65000, got %v", data["price_usd"])
	}
}

func TestCall_Sun_RejectsNonCoordinateLocation(t *testing.T) {
	exec := newTestExecutor(t, `{}`)
	_, err := exec.Call(context.Background(), "sun", map[string]any{"location": "Seattle"})
	if err == nil {
		t.Fatalf("expected an error for a non lat,lon location")
	}
	if !strings.Contains(err.Error(), "lat,lon") {
		t.Fatalf("expected a lat,lon hint in the error, got %q", err.Error())
	}
}

func TestNames_ListsAllNinePresets(t *testing.T) {
	exec := New(Config{}, nil)
	names := exec.Names()
	if len(names) != 9 {
		t.Fatalf("expected 9 preset APIs, got %d: %v", len(names), names)
	}
}
