// Package importer fetches rosters from the public team catalog.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mcoot/matchsync/internal/model"
)

const (
	defaultTeamName = "Imported Team"
	defaultNumber   = "000"

	// Largest response body read from the catalog
	maxBodyBytes = 1 << 20
)

// Importer resolves a team reference into a roster
type Importer interface {
	ImportTeam(ctx context.Context, teamRef string) (*model.ImportedTeam, error)
}

// Config holds configuration for the catalog client
type Config struct {
	BaseURL           string        `env:"URL" envDefault:"https://hcunits.net"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"8s"`
	RequestsPerSecond float64       `env:"RATE" envDefault:"2"`
	Burst             int           `env:"BURST" envDefault:"4"`
}

// DefaultConfig returns default catalog configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://hcunits.net",
		Timeout:           8 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Client imports teams over HTTP. Outbound calls are rate limited so a
// busy server stays a polite client of the catalog.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a catalog client
func New(cfg Config, logger *slog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger.With(slog.String("component", "importer")),
	}
}

var _ Importer = (*Client)(nil)

var (
	uuidPattern  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	plainPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ExtractTeamID accepts a bare team id or a catalog link such as
// https://hcunits.net/teams/{id}/ and returns the id
func ExtractTeamID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if found := uuidPattern.FindString(ref); found != "" {
		id, err := uuid.Parse(found)
		if err != nil {
			return "", model.ErrInvalidTeamRef
		}
		return id.String(), nil
	}
	if plainPattern.MatchString(ref) {
		return ref, nil
	}
	return "", model.ErrInvalidTeamRef
}

// ImportTeam fetches GET {base}/api/v1/teams/{id}
func (c *Client) ImportTeam(ctx context.Context, teamRef string) (*model.ImportedTeam, error) {
	id, err := ExtractTeamID(teamRef)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.Transient(fmt.Errorf("import rate limit: %w", err))
	}

	endpoint := c.baseURL + "/api/v1/teams/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build import request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("team import failed", slog.String("team_id", id), slog.Any("error", err))
		return nil, model.Transient(fmt.Errorf("fetch team %s: %w", id, err))
	}
	defer resp.Body.Close()

	c.logger.Info("team fetched",
		slog.String("team_id", id),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, model.ErrTeamNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, model.Transient(fmt.Errorf("team catalog returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", model.ErrMalformedTeam, resp.StatusCode)
	}

	var team remoteTeam
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&team); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedTeam, err)
	}
	return team.toModel()
}

// remoteTeam is the catalog's team document. Field names vary between
// catalog versions, so several spellings are accepted.
type remoteTeam struct {
	Name  string       `json:"name"`
	Units []remoteUnit `json:"units"`
}

type remoteUnit struct {
	SetID           flexString `json:"set_id"`
	CollectorNumber flexString `json:"collector_number"`
	Number          flexString `json:"number"`
	Name            string     `json:"name"`
	PointValue      flexInt    `json:"point_value"`
	Points          flexInt    `json:"points"`
}

func (t remoteTeam) toModel() (*model.ImportedTeam, error) {
	if len(t.Units) == 0 {
		return nil, fmt.Errorf("%w: team has no units", model.ErrMalformedTeam)
	}
	team := &model.ImportedTeam{
		Name:  firstNonEmpty(strings.TrimSpace(t.Name), defaultTeamName),
		Units: make([]model.UnitInput, 0, len(t.Units)),
	}
	for i, u := range t.Units {
		in := model.UnitInput{
			Collection: string(u.SetID),
			Number:     firstNonEmpty(string(u.CollectorNumber), string(u.Number), defaultNumber),
			Name:       strings.TrimSpace(u.Name),
			Points:     int(u.PointValue),
		}
		if in.Points == 0 {
			in.Points = int(u.Points)
		}
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("%w: unit %d: %v", model.ErrMalformedTeam, i, err)
		}
		team.Units = append(team.Units, in)
	}
	return team, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or a numeric string
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
