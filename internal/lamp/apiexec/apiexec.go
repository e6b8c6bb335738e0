// Package apiexec implements the preset API library the `fetchAPI` tool
// and the Pipeline Executor's `fetch` step call (spec.md §4.F, §4.G): nine
// curated read-only integrations (weather, stock, crypto, sun,
// air_quality, time, fear_greed, github_repo, random) that return raw data
// for the agent to act on — the executor never decides colours itself.
// Grounded on ManuGH-xg2g's internal/ratelimit.Limiter (golang.org/x/time/
// rate wrapped in a small struct) for outbound rate limiting, and on
// nexus's AnthropicProvider request/timeout shape for the HTTP client.
package apiexec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/adaptlight/lampcore/internal/lamp/lamperr"
	"github.com/adaptlight/lampcore/internal/observability"
)

// Handler fetches and shapes the response for one preset API.
type Handler func(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error)

// Config configures an Executor.
type Config struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	GitHubToken   string

	// HTTPClient, if set, replaces the default client — tests inject a
	// client with a stub RoundTripper instead of reaching the network.
	HTTPClient *http.Client
}

// Executor calls preset APIs over real HTTP endpoints, rate-limited and
// timeout-bounded.
type Executor struct {
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	handlers map[string]Handler
	metrics  *observability.Metrics
	githubToken string
}

// New constructs an Executor with the nine preset API handlers wired in.
func New(cfg Config, metrics *observability.Metrics) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	e := &Executor{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		timeout:     cfg.Timeout,
		metrics:     metrics,
		githubToken: cfg.GitHubToken,
	}
	e.handlers = map[string]Handler{
		"weather":     e.weather,
		"stock":       e.stock,
		"crypto":      e.crypto,
		"sun":         e.sun,
		"air_quality": e.airQuality,
		"time":        e.currentTime,
		"fear_greed":  e.fearGreed,
		"github_repo": e.githubRepo,
		"random":      e.random,
	}
	return e
}

// Call implements pipeline.APIExecutor and is the entry point for the
// fetchAPI tool.
func (e *Executor) Call(ctx context.Context, api string, params map[string]any) (any, error) {
	handler, ok := e.handlers[api]
	if !ok {
		return nil, lamperr.New(lamperr.KindNotFound, "apiexec.Call", fmt.Errorf("unknown preset API %q", api))
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, lamperr.New(lamperr.KindTimeout, "apiexec.Call", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := handler(ctx, e.client, params)
	if e.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		e.metrics.APICallsTotal.WithLabelValues(api, outcome).Inc()
		e.metrics.APICallDuration.WithLabelValues(api).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, lamperr.New(lamperr.KindFetchError, "apiexec."+api, err)
	}
	return result, nil
}

// Names lists every registered preset API (listAPIs tool).
func (e *Executor) Names() []string {
	out := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		out = append(out, name)
	}
	return out
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("request to %s returned status %d: %s", rawURL, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return s, nil
}

// weather fetches current conditions from wttr.in (grounded on the
// original source's get_weather tool, which queries the same endpoint).
func (e *Executor) weather(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	location, err := stringParam(params, "location")
	if err != nil {
		return nil, err
	}
	var raw struct {
		CurrentCondition []struct {
			TempF        string `json:"temp_F"`
			TempC        string `json:"temp_C"`
			Humidity     string `json:"humidity"`
			WindspeedMiles string `json:"windspeedMiles"`
			WeatherDesc  []struct {
				Value string `json:"value"`
			} `json:"weatherDesc"`
		} `json:"current_condition"`
	}
	endpoint := fmt.Sprintf("https://wttr.in/%s?format=j1", url.PathEscape(location))
	if err := getJSON(ctx, client, endpoint, &raw); err != nil {
		return nil, err
	}
	if len(raw.CurrentCondition) == 0 {
		return nil, fmt.Errorf("no weather data returned for %q", location)
	}
	cur := raw.CurrentCondition[0]
	tempF, _ := strconv.ParseFloat(cur.TempF, 64)
	tempC, _ := strconv.ParseFloat(cur.TempC, 64)
	humidity, _ := strconv.Atoi(cur.Humidity)
	wind, _ := strconv.ParseFloat(cur.WindspeedMiles, 64)
	desc := ""
	if len(cur.WeatherDesc) > 0 {
		desc = cur.WeatherDesc[0].Value
	}
	return map[string]any{
		"temp_f":      tempF,
		"temp_c":      tempC,
		"condition":   classifyWeather(desc),
		"humidity":    humidity,
		"wind_mph":    wind,
		"description": desc,
	}, nil
}

func classifyWeather(desc string) string {
	lower := strings.ToLower(desc)
	switch {
	case strings.Contains(lower, "rain") || strings.Contains(lower, "drizzle"):
		return "rainy"
	case strings.Contains(lower, "snow"):
		return "snowy"
	case strings.Contains(lower, "thunder") || strings.Contains(lower, "storm"):
		return "stormy"
	case strings.Contains(lower, "fog") || strings.Contains(lower, "mist"):
		return "foggy"
	case strings.Contains(lower, "cloud") || strings.Contains(lower, "overcast"):
		return "cloudy"
	default:
		return "sunny"
	}
}

// stock fetches a quote from Stooq's free CSV endpoint, the same
// no-API-key source used by several open-source dashboards.
func (e *Executor) stock(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	symbol, err := stringParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("https://stooq.com/q/l/?s=%s&f=sd2t2ohlcv&h&e=json", url.QueryEscape(symbol))
	var raw struct {
		Symbols []struct {
			Symbol string  `json:"symbol"`
			Close  float64 `json:"close"`
			Open   float64 `json:"open"`
			Volume int64   `json:"volume"`
		} `json:"symbols"`
	}
	if err := getJSON(ctx, client, endpoint, &raw); err != nil {
		return nil, err
	}
	if len(raw.Symbols) == 0 {
		return nil, fmt.Errorf("no quote data returned for %q", symbol)
	}
	q := raw.Symbols[0]
	changeAbs := q.Close - q.Open
	changePct := 0.0
	if q.Open != 0 {
		changePct = (changeAbs / q.Open) * 100
	}
	return map[string]any{
		"price":            q.Close,
		"change_percent":   changePct,
		"change_absolute":  changeAbs,
		"volume":           q.Volume,
		"symbol":           symbol,
	}, nil
}

// crypto fetches price and 24h change from CoinGecko's public API.
func (e *Executor) crypto(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	coin, err := stringParam(params, "coin")
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true&include_market_cap=true&include_24hr_vol=true", url.QueryEscape(coin))
	var raw map[string]struct {
		USD            float64 `json:"usd"`
		USD24hChange   float64 `json:"usd_24h_change"`
		USDMarketCap   float64 `json:"usd_market_cap"`
		USD24hVol      float64 `json:"usd_24h_vol"`
	}
	if err := getJSON(ctx, client, endpoint, &raw); err != nil {
		return nil, err
	}
	data, ok := raw[coin]
	if !ok {
		return nil, fmt.Errorf("unknown coin %q", coin)
	}
	return map[string]any{
		"price_usd":   data.USD,
		"change_24h":  data.USD24hChange,
		"market_cap":  data.USDMarketCap,
		"volume_24h":  data.USD24hVol,
		"coin":        coin,
	}, nil
}

// sun fetches sunrise/sunset from sunrise-sunset.org, which takes
// lat/lon; a location that is not "lat,lon" coordinates (such as a bare
// city name) is rejected by splitLatLon before any request is made, since
// this executor does no geocoding.
func (e *Executor) sun(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	location, err := stringParam(params, "location")
	if err != nil {
		return nil, err
	}
	lat, lon, err := splitLatLon(location)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("https://api.sunrise-sunset.org/json?lat=%s&lng=%s&formatted=0", lat, lon)
	var raw struct {
		Results struct {
			Sunrise string `json:"sunrise"`
			Sunset  string `json:"sunset"`
			DayLength string `json:"day_length"`
		} `json:"results"`
	}
	if err := getJSON(ctx, client, endpoint, &raw); err != nil {
		return nil, err
	}
	sunrise, _ := time.Parse(time.RFC3339, raw.Results.Sunrise)
	sunset, _ := time.Parse(time.RFC3339, raw.Results.Sunset)
	now := time.Now()
	isDaytime := now.After(sunrise) && now.Before(sunset)
	return map[string]any{
		"sunrise":                sunrise.Local().Format("15:04"),
		"sunset":                 sunset.Local().Format("15:04"),
		"is_daytime":             isDaytime,
		"minutes_until_sunset":   int(sunset.Sub(now).Minutes()),
		"minutes_until_sunrise":  int(sunrise.Sub(now).Minutes()),
	}, nil
}

// airQuality fetches pollution data from the Open-Meteo air quality API,
// which needs coordinates; like sun, a plain city name is rejected by
// splitLatLon before any request is made.
func (e *Executor) airQuality(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	location, err := stringParam(params, "location")
	if err != nil {
		return nil, err
	}
	lat, lon, err := splitLatLon(location)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("https://air-quality-api.open-meteo.com/v1/air-quality?latitude=%s&longitude=%s&current=us_aqi,pm2_5,pm10", lat, lon)
	var raw struct {
		Current struct {
			USAqi float64 `json:"us_aqi"`
			PM25  float64 `json:"pm2_5"`
			PM10  float64 `json:"pm10"`
		} `json:"current"`
	}
	if err := getJSON(ctx, client, endpoint, &raw); err != nil {
		return nil, err
	}
	return map[string]any{
		"aqi":                raw.Current.USAqi,
		"level":              classifyAQI(raw.Current.USAqi),
		"pm25":               raw.Current.PM25,
		"pm10":               raw.Current.PM10,
		"dominant_pollutant": dominantPollutant(raw.Current.PM25, raw.Current.PM10),
	}, nil
}

func classifyAQI(aqi float64) string {
	switch {
	case aqi <= 50:
		return "good"
	case aqi <= 100:
		return "moderate"
	case aqi <= 150:
		return "unhealthy_sensitive"
	case aqi <= 200:
		return "unhealthy"
	case aqi <= 300:
		return "very_unhealthy"
	default:
		return "hazardous"
	}
}

func dominantPollutant(pm25, pm10 float64) string {
	if pm25 >= pm10 {
		return "pm25"
	}
	return "pm10"
}

// currentTime needs no network call; it derives every field from the
// local clock, honouring an optional IANA timezone parameter.
func (e *Executor) currentTime(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	now := time.Now()
	if tz, ok := params["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		now = now.In(loc)
	}
	weekday := (int(now.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	isWeekend := weekday >= 5
	isBusinessHours := !isWeekend && now.Hour() >= 9 && now.Hour() < 17
	return map[string]any{
		"hour":              now.Hour(),
		"minute":            now.Minute(),
		"second":            now.Second(),
		"weekday":           weekday,
		"is_weekend":        isWeekend,
		"is_business_hours": isBusinessHours,
	}, nil
}

// fearGreed fetches the Bitcoin Fear & Greed Index from alternative.me.
func (e *Executor) fearGreed(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	var raw struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, "https://api.alternative.me/fng/?limit=1", &raw); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("no fear/greed data returned")
	}
	value, _ := strconv.Atoi(raw.Data[0].Value)
	return map[string]any{
		"value":          value,
		"classification": strings.ToLower(raw.Data[0].ValueClassification),
	}, nil
}

// githubRepo fetches repository statistics from the GitHub REST API.
func (e *Executor) githubRepo(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	repo, err := stringParam(params, "repo")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/repos/"+repo, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if e.githubToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.githubToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("github API returned status %d for %q", resp.StatusCode, repo)
	}
	var raw struct {
		StargazersCount int `json:"stargazers_count"`
		ForksCount      int `json:"forks_count"`
		OpenIssuesCount int `json:"open_issues_count"`
		SubscribersCount int `json:"subscribers_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return map[string]any{
		"stars":       raw.StargazersCount,
		"forks":       raw.ForksCount,
		"open_issues": raw.OpenIssuesCount,
		"watchers":    raw.SubscribersCount,
	}, nil
}

// random needs no network call: uniform values useful for testing or
// randomized effects, mirroring the original source's "random" preset.
func (e *Executor) random(ctx context.Context, client *http.Client, params map[string]any) (map[string]any, error) {
	minV, maxV := 0.0, 1.0
	if v, ok := params["min"].(float64); ok {
		minV = v
	}
	if v, ok := params["max"].(float64); ok {
		maxV = v
	}
	if maxV < minV {
		minV, maxV = maxV, minV
	}
	return map[string]any{
		"value": minV + rand.Float64()*(maxV-minV),
	}, nil
}

func splitLatLon(location string) (lat, lon string, err error) {
	for i, r := range location {
		if r == ',' {
			return location[:i], location[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("location %q must be \"lat,lon\" coordinates for this API", location)
}

