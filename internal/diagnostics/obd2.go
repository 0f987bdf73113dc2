package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carservice/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cachePrefix = "carservice:obd2:"

// Decoded is the interpretation of one trouble code.
type Decoded struct {
	Code       string   `json:"code"`
	Definition string   `json:"definition"`
	Causes     []string `json:"cause"`
}

type Decoder interface {
	Decode(ctx context.Context, code string) (*Decoded, error)
}

// OBD2Client calls the RapidAPI car-code service.
type OBD2Client struct {
	baseURL    string
	host       string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

func NewOBD2Client(baseURL, host, apiKey string, timeout time.Duration) *OBD2Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OBD2Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		host:       host,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache enables caching of successful lookups.
func (c *OBD2Client) UseRedisCache(client *redis.Client, ttl time.Duration) {
	c.redis = client
	c.cacheTTL = ttl
}

func (c *OBD2Client) Decode(ctx context.Context, code string) (*Decoded, error) {
	var out Decoded
	if c.readCache(ctx, code, &out) {
		return &out, nil
	}

	endpoint := fmt.Sprintf("%s/obd2/%s", c.baseURL, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	if c.host != "" {
		req.Header.Set("x-rapidapi-host", c.host)
	}
	if c.apiKey != "" {
		req.Header.Set("x-rapidapi-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("obd2 request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NotFound("diagnostic code", 0)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("obd2 api: http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode obd2 response: %w", err)
	}
	if out.Definition == "" {
		return nil, domain.NotFound("diagnostic code", 0)
	}
	if out.Code == "" {
		out.Code = code
	}
	c.writeCache(ctx, code, out)
	return &out, nil
}

func (c *OBD2Client) readCache(ctx context.Context, code string, out *Decoded) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, cachePrefix+code).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *OBD2Client) writeCache(ctx context.Context, code string, val Decoded) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, cachePrefix+code, data, c.cacheTTL).Err()
}

// FallbackDecoder answers from a local table when the remote decoder is absent or failing.
type FallbackDecoder struct {
	remote Decoder
	local  map[string]Decoded
	logger zerolog.Logger
}

// NewFallbackDecoder wraps remote; remote may be nil.
func NewFallbackDecoder(remote Decoder, logger *zerolog.Logger) *FallbackDecoder {
	return &FallbackDecoder{
		remote: remote,
		local:  localCodes,
		logger: logger.With().Str("component", "obd2").Logger(),
	}
}

func (f *FallbackDecoder) Decode(ctx context.Context, code string) (*Decoded, error) {
	if f.remote != nil {
		d, err := f.remote.Decode(ctx, code)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			f.logger.Warn().Err(err).Str("code", code).Msg("OBD2 API unavailable, using local table")
		}
	}
	if d, ok := f.local[code]; ok {
		return &d, nil
	}
	return nil, domain.NotFound("diagnostic code", 0)
}

var localCodes = map[string]Decoded{
	"P0171": {Code: "P0171", Definition: "System Too Lean (Bank 1)", Causes: []string{
		"Vacuum leak", "Faulty MAF sensor", "Clogged fuel injectors", "Low fuel pressure",
	}},
	"P0300": {Code: "P0300", Definition: "Random/Multiple Cylinder Misfire Detected", Causes: []string{
		"Worn spark plugs", "Faulty ignition coils", "Vacuum leak", "Low fuel pressure",
	}},
	"P0301": {Code: "P0301", Definition: "Cylinder 1 Misfire Detected", Causes: []string{
		"Faulty spark plug", "Faulty ignition coil", "Clogged fuel injector",
	}},
	"P0420": {Code: "P0420", Definition: "Catalyst System Efficiency Below Threshold (Bank 1)", Causes: []string{
		"Worn catalytic converter", "Faulty oxygen sensor", "Exhaust leak",
	}},
	"P0455": {Code: "P0455", Definition: "Evaporative Emission System Leak Detected (large leak)", Causes: []string{
		"Loose fuel cap", "Damaged EVAP hose", "Faulty purge valve",
	}},
	"P0128": {Code: "P0128", Definition: "Coolant Thermostat Below Regulating Temperature", Causes: []string{
		"Stuck open thermostat", "Faulty coolant temperature sensor",
	}},
	"P0500": {Code: "P0500", Definition: "Vehicle Speed Sensor Malfunction", Causes: []string{
		"Faulty speed sensor", "Damaged wiring", "Faulty instrument cluster",
	}},
	"U0100": {Code: "U0100", Definition: "Lost Communication With ECM/PCM", Causes: []string{
		"CAN bus wiring fault", "ECM power or ground failure", "Faulty ECM",
	}},
}
