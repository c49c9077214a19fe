// Package brightlocal provides a client for the BrightLocal Citation Tracker
// report API.
package brightlocal

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://tools.brightlocal.com/seo-tools/api"

// Client defines the Citation Tracker report operations.
type Client interface {
	// AddReport registers a citation report for a business and returns its ID.
	AddReport(ctx context.Context, req AddReportRequest) (string, error)
	// RunReport starts a scan for an existing report.
	RunReport(ctx context.Context, reportID string) error
	// GetReport returns report metadata including the scan status.
	GetReport(ctx context.Context, reportID string) (*Report, error)
	// GetResults returns the citations grouped by provider confidence.
	GetResults(ctx context.Context, reportID string) (*Results, error)
	// DeleteReport removes a report.
	DeleteReport(ctx context.Context, reportID string) error
}

// AddReportRequest describes the business a citation report tracks.
type AddReportRequest struct {
	ReportName   string
	BusinessName string
	Phone        string
	Address      string
	City         string
	StateCode    string
	Postcode     string
	Country      string
	Website      string
}

// Report is the metadata returned by the get endpoint.
type Report struct {
	ReportID     string `json:"report_id"`
	ReportName   string `json:"report_name"`
	BusinessName string `json:"business_name"`
	Status       string `json:"status"`
	LastRun      string `json:"last_run,omitempty"`
}

// Results groups citations by the provider's confidence that they exist.
type Results struct {
	Active   []Citation `json:"active"`
	Pending  []Citation `json:"pending"`
	Possible []Citation `json:"possible"`
}

// Citation is one directory result. Pointer fields are null when the
// provider found nothing for them.
type Citation struct {
	Source          string  `json:"source"`
	URL             *string `json:"url"`
	BusinessName    *string `json:"business-name"`
	Address         *string `json:"address"`
	Telephone       *string `json:"telephone"`
	DomainAuthority int     `json:"domain-authority"`
	SiteType        string  `json:"site-type"`
}

// APIError is returned for non-2xx responses and unsuccessful API envelopes.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brightlocal: status %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Success  bool            `json:"success"`
	Errors   json.RawMessage `json:"errors,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Report   json.RawMessage `json:"report,omitempty"`
	Results  json.RawMessage `json:"results,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles calls to rps requests per second. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithClock overrides the time source used to sign requests.
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) {
		c.now = now
	}
}

type httpClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewClient creates a Citation Tracker client. Calls are throttled to
// 5 req/s unless overridden.
func NewClient(apiKey, apiSecret string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(5, 5),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) AddReport(ctx context.Context, req AddReportRequest) (string, error) {
	form := url.Values{}
	form.Set("report-name", req.ReportName)
	form.Set("business-name", req.BusinessName)
	form.Set("phone", req.Phone)
	form.Set("address1", req.Address)
	form.Set("city", req.City)
	form.Set("state-code", req.StateCode)
	form.Set("postcode", req.Postcode)
	form.Set("country", defaultString(req.Country, "USA"))
	if req.Website != "" {
		form.Set("website", req.Website)
	}

	env, err := c.do(ctx, http.MethodPost, "/v2/ct/add", form)
	if err != nil {
		return "", eris.Wrap(err, "brightlocal: add report")
	}

	var resp struct {
		ReportID json.Number `json:"report-id"`
	}
	if err := json.Unmarshal(env.Response, &resp); err != nil {
		return "", eris.Wrap(err, "brightlocal: unmarshal add response")
	}
	if resp.ReportID == "" {
		return "", eris.New("brightlocal: add response missing report-id")
	}
	return resp.ReportID.String(), nil
}

func (c *httpClient) RunReport(ctx context.Context, reportID string) error {
	form := url.Values{"report-id": {reportID}}
	if _, err := c.do(ctx, http.MethodPost, "/v2/ct/run", form); err != nil {
		return eris.Wrapf(err, "brightlocal: run report %s", reportID)
	}
	return nil
}

func (c *httpClient) GetReport(ctx context.Context, reportID string) (*Report, error) {
	env, err := c.do(ctx, http.MethodGet, "/v2/ct/get", url.Values{"report-id": {reportID}})
	if err != nil {
		return nil, eris.Wrapf(err, "brightlocal: get report %s", reportID)
	}

	var r Report
	if err := json.Unmarshal(env.Report, &r); err != nil {
		return nil, eris.Wrap(err, "brightlocal: unmarshal report")
	}
	return &r, nil
}

func (c *httpClient) GetResults(ctx context.Context, reportID string) (*Results, error) {
	env, err := c.do(ctx, http.MethodGet, "/v2/ct/get-results", url.Values{"report-id": {reportID}})
	if err != nil {
		return nil, eris.Wrapf(err, "brightlocal: get results %s", reportID)
	}
	if len(env.Results) == 0 {
		return nil, eris.Errorf("brightlocal: results missing for report %s", reportID)
	}

	var r Results
	if err := json.Unmarshal(env.Results, &r); err != nil {
		return nil, eris.Wrap(err, "brightlocal: unmarshal results")
	}
	return &r, nil
}

func (c *httpClient) DeleteReport(ctx context.Context, reportID string) error {
	form := url.Values{"report-id": {reportID}}
	if _, err := c.do(ctx, http.MethodPost, "/v2/ct/delete", form); err != nil {
		return eris.Wrapf(err, "brightlocal: delete report %s", reportID)
	}
	return nil
}

// do signs and sends a request, decoding the common response envelope.
func (c *httpClient) do(ctx context.Context, method, path string, params url.Values) (*envelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit")
		}
	}

	c.sign(params)

	reqURL := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		reqURL += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 300)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, eris.Wrap(err, "unmarshal response")
	}
	if !env.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(env.Errors), 300)}
	}
	return &env, nil
}

// sign adds the api-key, expiry and HMAC-SHA1 signature parameters.
func (c *httpClient) sign(params url.Values) {
	expires := strconv.FormatInt(c.now().Add(30*time.Minute).Unix(), 10)
	mac := hmac.New(sha1.New, []byte(c.apiSecret))
	mac.Write([]byte(c.apiKey + expires))

	params.Set("api-key", c.apiKey)
	params.Set("expires", expires)
	params.Set("sig", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
