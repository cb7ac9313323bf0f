// ABOUTME: HTTP client for the Apollo.io REST API
// ABOUTME: Paginates engagement messages, matches people, lists campaigns, with pacing and retries
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/logger"
	"github.com/jpchacon09/APOLLO/models"
)

const (
	messagesSearchPath  = "/api/v1/emailer_messages/search"
	peopleMatchPath     = "/api/v1/people/match"
	campaignsSearchPath = "/api/v1/emailer_campaigns/search"

	defaultHTTPTimeout = 30 * time.Second
	defaultPacing      = 500 * time.Millisecond
	defaultPageSize    = 100
	defaultMaxPages    = 50
	maxErrorBody       = 512
)

// Client talks to the provider. One client is shared by all sync workers so that
// its limiter paces every call.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    BackoffPolicy
	pageSize   int
	maxPages   int
	log        *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithPacing sets the minimum interval between calls. Zero disables pacing.
func WithPacing(d time.Duration) Option {
	return func(c *Client) { c.limiter = newLimiter(d) }
}

// WithBackoff sets the retry policy for transient failures.
func WithBackoff(p BackoffPolicy) Option {
	return func(c *Client) { c.backoff = p }
}

// WithPageSize sets the per_page value of paginated searches.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = n }
}

// WithMaxPages caps how many pages a single search may read.
func WithMaxPages(n int) Option {
	return func(c *Client) { c.maxPages = n }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client with default pacing, timeout, and retry policy.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    config.DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    newLimiter(defaultPacing),
		backoff:    DefaultBackoff(),
		pageSize:   defaultPageSize,
		maxPages:   defaultMaxPages,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from runtime configuration.
func NewFromConfig(cfg *config.Config, log *logger.Logger) *Client {
	return New(cfg.APIKey,
		WithBaseURL(cfg.BaseURL),
		WithTimeout(cfg.RequestTimeout.Duration),
		WithPacing(cfg.Pacing.Duration),
		WithBackoff(BackoffPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.RetryDelay.Duration,
			Jitter:      cfg.RetryJitter,
		}),
		WithPageSize(cfg.PageSize),
		WithMaxPages(cfg.MaxPages),
		WithLogger(log),
	)
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

type pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// flexInt accepts a JSON number, a numeric string, or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cannot unmarshal %s into int", string(data))
	}
	*f = flexInt(fl)
	return nil
}

type wireMessage struct {
	ID                string   `json:"id"`
	ToEmail           string   `json:"to_email"`
	ToName            string   `json:"to_name"`
	Type              string   `json:"type"`
	Subject           string   `json:"subject"`
	Status            string   `json:"status"`
	EmailerCampaignID string   `json:"emailer_campaign_id"`
	StepNumber        *flexInt `json:"step_number"`
	CreatedAt         string   `json:"created_at"`
	SentAt            string   `json:"sent_at"`
	EmailerCampaign   *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"emailer_campaign"`
	EmailerStep *struct {
		ID       string  `json:"id"`
		Position flexInt `json:"position"`
	} `json:"emailer_step"`
	Account *struct {
		Name string `json:"name"`
	} `json:"account"`
}

type messagesResponse struct {
	EmailerMessages []wireMessage `json:"emailer_messages"`
	Pagination      *pagination   `json:"pagination"`
}

// FetchEvents returns every engagement message addressed to email, in provider
// order, reading pages until an empty page, the reported last page, or the page cap.
func (c *Client) FetchEvents(ctx context.Context, email string) ([]models.EngagementEvent, error) {
	var events []models.EngagementEvent

	for page := 1; page <= c.maxPages; page++ {
		req := map[string]any{
			"email_address": email,
			"page":          page,
			"per_page":      c.pageSize,
		}
		var resp messagesResponse
		if err := c.post(ctx, "fetch events", messagesSearchPath, req, &resp); err != nil {
			return nil, err
		}
		if len(resp.EmailerMessages) == 0 {
			break
		}
		for i := range resp.EmailerMessages {
			events = append(events, toEvent(&resp.EmailerMessages[i], email))
		}
		if resp.Pagination != nil && resp.Pagination.TotalPages > 0 && page >= resp.Pagination.TotalPages {
			break
		}
		if page == c.maxPages {
			c.log.Warn("page cap reached", "email", email, "max_pages", c.maxPages)
		}
	}

	return events, nil
}

func toEvent(m *wireMessage, queried string) models.EngagementEvent {
	e := models.EngagementEvent{
		ID:             m.ID,
		RecipientEmail: strings.ToLower(strings.TrimSpace(m.ToEmail)),
		RecipientName:  m.ToName,
		Channel:        models.ParseChannel(m.Type),
		SequenceID:     m.EmailerCampaignID,
		Status:         models.ParseEventStatus(m.Status),
		Subject:        m.Subject,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecipientEmail == "" {
		e.RecipientEmail = strings.ToLower(strings.TrimSpace(queried))
	}
	if m.EmailerCampaign != nil {
		if e.SequenceID == "" {
			e.SequenceID = m.EmailerCampaign.ID
		}
		e.SequenceName = m.EmailerCampaign.Name
	}
	if m.StepNumber != nil {
		e.StepNumber = int(*m.StepNumber)
	} else if m.EmailerStep != nil {
		e.StepNumber = int(m.EmailerStep.Position)
	}
	if m.Account != nil {
		e.Account = m.Account.Name
	}
	if t := parseTimestamp(m.CreatedAt); t != nil {
		e.CreatedAt = *t
	}
	e.SentAt = parseTimestamp(m.SentAt)
	return e
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

type personResponse struct {
	Person *struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		Title        string `json:"title"`
		LinkedInURL  string `json:"linkedin_url"`
		PhoneNumbers []struct {
			SanitizedNumber string `json:"sanitized_number"`
			RawNumber       string `json:"raw_number"`
		} `json:"phone_numbers"`
		Organization *struct {
			Name string `json:"name"`
		} `json:"organization"`
		ActiveSequences []struct {
			EmailerCampaignID string  `json:"emailer_campaign_id"`
			Name              string  `json:"name"`
			CurrentStepNumber flexInt `json:"current_step_number"`
		} `json:"active_sequences"`
	} `json:"person"`
}

// MatchPerson looks up the enrichment profile for email. A nil person with a nil
// error means the provider has no match.
func (c *Client) MatchPerson(ctx context.Context, email string) (*models.Person, error) {
	var resp personResponse
	if err := c.post(ctx, "match person", peopleMatchPath, map[string]any{"email": email}, &resp); err != nil {
		return nil, err
	}
	if resp.Person == nil {
		return nil, nil
	}

	p := resp.Person
	out := &models.Person{
		ID:       p.ID,
		Name:     p.Name,
		Title:    p.Title,
		LinkedIn: p.LinkedInURL,
	}
	if out.Name == "" {
		out.Name = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	if len(p.PhoneNumbers) > 0 {
		out.Phone = p.PhoneNumbers[0].SanitizedNumber
		if out.Phone == "" {
			out.Phone = p.PhoneNumbers[0].RawNumber
		}
	}
	if p.Organization != nil {
		out.OrganizationName = p.Organization.Name
	}
	if len(p.ActiveSequences) > 0 {
		seq := p.ActiveSequences[0]
		out.SequenceID = seq.EmailerCampaignID
		out.SequenceName = seq.Name
		out.StepNumber = int(seq.CurrentStepNumber)
	}
	return out, nil
}

type campaignsResponse struct {
	EmailerCampaigns []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"emailer_campaigns"`
	Pagination *pagination `json:"pagination"`
}

// ListCampaigns returns every sequence visible to the API key.
func (c *Client) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var out []models.Campaign
	now := time.Now().UTC()

	for page := 1; page <= c.maxPages; page++ {
		var resp campaignsResponse
		req := map[string]any{"page": page, "per_page": c.pageSize}
		if err := c.post(ctx, "list campaigns", campaignsSearchPath, req, &resp); err != nil {
			return nil, err
		}
		if len(resp.EmailerCampaigns) == 0 {
			break
		}
		for _, ec := range resp.EmailerCampaigns {
			out = append(out, models.Campaign{ID: ec.ID, Name: ec.Name, UpdatedAt: now})
		}
		if resp.Pagination != nil && resp.Pagination.TotalPages > 0 && page >= resp.Pagination.TotalPages {
			break
		}
	}
	return out, nil
}

// post sends one logical request, retrying transient failures per the backoff policy.
func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return permanent(op, 0, fmt.Errorf("failed to encode request: %w", err))
	}

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.postOnce(ctx, op, path, payload, out)
		if err == nil {
			return nil
		}

		decision, delay := c.backoff.Decide(attempt, err)
		switch decision {
		case DecisionRetry:
			c.log.Debug("retrying provider call", "op", op, "attempt", attempt, "delay", delay, "error", err)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		case DecisionAbort:
			return err
		default:
			var perr *Error
			if errors.As(err, &perr) && perr.Kind == KindTransient {
				perr.Exhausted = true
				perr.Attempts = attempt
			}
			c.log.ProviderError(op, err)
			return err
		}
	}
}

func (c *Client) postOnce(ctx context.Context, op, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return permanent(op, 0, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transient(op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return rateLimited(op, resp.StatusCode)
	case resp.StatusCode >= 500:
		return transient(op, resp.StatusCode, errors.New(readSnippet(resp.Body)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return permanent(op, resp.StatusCode, errors.New(readSnippet(resp.Body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transient(op, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return permanent(op, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty response body"
	}
	return s
}
