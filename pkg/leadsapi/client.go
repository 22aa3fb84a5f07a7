// Package leadsapi is an HTTP client for the lead generation API: job
// creation, job status, CSV downloads, uploads, auth, and chat.
package leadsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/model"
)

const defaultBaseURL = "http://localhost:8000/api"

// Client defines the lead generation API operations.
type Client interface {
	// Leads
	ExtractURLs(ctx context.Context, req ExtractRequest) (*JobStarted, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	EnrichContacts(ctx context.Context, inputFilename string) (*JobStarted, error)
	RankSEO(ctx context.Context, inputFilename string) (*JobStarted, error)
	RankCSVFile(ctx context.Context, filename string, body io.Reader) (*RankResponse, error)
	Download(ctx context.Context, jobID string) ([]byte, error)
	ListFiles(ctx context.Context) (*FileList, error)

	// Audit
	UploadAuditFile(ctx context.Context, filename string, body io.Reader) (*UploadResponse, error)
	RunAudit(ctx context.Context, inputFilename string, limit int) (*JobStarted, error)
	GetAuditJob(ctx context.Context, id string) (*model.Job, error)
	DownloadAudit(ctx context.Context, jobID string) ([]byte, error)

	// Auth
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Me(ctx context.Context) (*User, error)

	// Chat
	Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Health checks the service root, outside the /api prefix.
	Health(ctx context.Context) (*HealthStatus, error)
}

// ExtractRequest is the body for POST /leads/extract-urls.
type ExtractRequest struct {
	BusinessType string `json:"business_type"`
	Location     string `json:"location"`
	NumPages     int    `json:"num_pages"`
}

// JobStarted is the response of every job-creating endpoint.
type JobStarted struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type fileRequest struct {
	InputFilename string `json:"input_filename"`
}

type auditRequest struct {
	InputFilename string `json:"input_filename"`
	Limit         int    `json:"limit"`
}

// FileInfo describes a CSV file in the server's output directory.
type FileInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Created  string `json:"created,omitempty"`
}

// FileList is the response from GET /leads/list-files.
type FileList struct {
	Files []FileInfo `json:"files"`
	Count int        `json:"count,omitempty"`
}

// UploadResponse is the response from POST /leads/audit/upload.
type UploadResponse struct {
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
}

// RankResponse is the response from POST /leads/rank-csv-file. Each row is
// the uploaded CSV row plus SEO_Rank, PainScore, Mobile_Score and
// Desktop_Score.
type RankResponse struct {
	Success     bool             `json:"success"`
	Data        []map[string]any `json:"data"`
	TotalRanked int              `json:"total_ranked"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// User is the identity returned by GET /auth/me and POST /auth/register.
type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Username          string `json:"username"`
	SubscriptionLevel string `json:"subscription_level,omitempty"`
	IsActive          bool   `json:"is_active"`
	CreatedAt         string `json:"created_at,omitempty"`
}

// ChatRequest is the body for POST /chat/ask.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the response from POST /chat/ask.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Bearer() string
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL (which includes the /api prefix).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTokenSource sets the bearer token provider for authenticated calls.
func WithTokenSource(ts TokenSource) Option {
	return func(c *httpClient) {
		c.tokens = ts
	}
}

// WithRateLimit caps outgoing requests to r per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(c *httpClient) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
}

// NewClient creates a new lead generation API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ExtractURLs(ctx context.Context, req ExtractRequest) (*JobStarted, error) {
	var resp JobStarted
	if err := c.post(ctx, "/leads/extract-urls", req, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: extract urls")
	}
	return &resp, nil
}

func (c *httpClient) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := c.get(ctx, "/leads/job/"+url.PathEscape(id), &job); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("leadsapi: get job %s", id))
	}
	if job.ID == "" {
		job.ID = id
	}
	return &job, nil
}

func (c *httpClient) EnrichContacts(ctx context.Context, inputFilename string) (*JobStarted, error) {
	var resp JobStarted
	if err := c.post(ctx, "/leads/enrich-contacts", fileRequest{InputFilename: inputFilename}, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: enrich contacts")
	}
	return &resp, nil
}

func (c *httpClient) RankSEO(ctx context.Context, inputFilename string) (*JobStarted, error) {
	var resp JobStarted
	if err := c.post(ctx, "/leads/rank-seo", fileRequest{InputFilename: inputFilename}, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: rank seo")
	}
	return &resp, nil
}

func (c *httpClient) RankCSVFile(ctx context.Context, filename string, body io.Reader) (*RankResponse, error) {
	var resp RankResponse
	if err := c.upload(ctx, "/leads/rank-csv-file", filename, body, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: rank csv file")
	}
	return &resp, nil
}

func (c *httpClient) Download(ctx context.Context, jobID string) ([]byte, error) {
	data, err := c.raw(ctx, "/leads/download/"+url.PathEscape(jobID))
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("leadsapi: download %s", jobID))
	}
	return data, nil
}

func (c *httpClient) ListFiles(ctx context.Context) (*FileList, error) {
	var resp FileList
	if err := c.get(ctx, "/leads/list-files", &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: list files")
	}
	return &resp, nil
}

func (c *httpClient) UploadAuditFile(ctx context.Context, filename string, body io.Reader) (*UploadResponse, error) {
	var resp UploadResponse
	if err := c.upload(ctx, "/leads/audit/upload", filename, body, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: upload audit file")
	}
	return &resp, nil
}

func (c *httpClient) RunAudit(ctx context.Context, inputFilename string, limit int) (*JobStarted, error) {
	var resp JobStarted
	if err := c.post(ctx, "/leads/audit/run", auditRequest{InputFilename: inputFilename, Limit: limit}, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: run audit")
	}
	return &resp, nil
}

func (c *httpClient) GetAuditJob(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := c.get(ctx, "/leads/audit/job/"+url.PathEscape(id), &job); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("leadsapi: get audit job %s", id))
	}
	if job.ID == "" {
		job.ID = id
	}
	return &job, nil
}

func (c *httpClient) DownloadAudit(ctx context.Context, jobID string) ([]byte, error) {
	data, err := c.raw(ctx, "/leads/audit/download/"+url.PathEscape(jobID))
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("leadsapi: download audit %s", jobID))
	}
	return data, nil
}

func (c *httpClient) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var resp User
	if err := c.post(ctx, "/auth/register", req, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: register")
	}
	return &resp, nil
}

func (c *httpClient) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var resp TokenPair
	if err := c.post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: login")
	}
	return &resp, nil
}

func (c *httpClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var resp TokenPair
	if err := c.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: refresh")
	}
	return &resp, nil
}

func (c *httpClient) Me(ctx context.Context) (*User, error) {
	var resp User
	if err := c.get(ctx, "/auth/me", &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: me")
	}
	return &resp, nil
}

func (c *httpClient) Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/chat/ask", req, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: chat ask")
	}
	return &resp, nil
}

// HealthStatus is the response of GET /health.
type HealthStatus struct {
	Status string `json:"status"`
}

func (c *httpClient) Health(ctx context.Context) (*HealthStatus, error) {
	root := strings.TrimSuffix(strings.TrimRight(c.baseURL, "/"), "/api")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root+"/health", nil)
	if err != nil {
		return nil, eris.Wrap(err, "leadsapi: health")
	}
	var resp HealthStatus
	if err := c.decode(req, &resp); err != nil {
		return nil, eris.Wrap(err, "leadsapi: health")
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.decode(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	return c.decode(req, out)
}

func (c *httpClient) raw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "text/csv")
	return c.do(req)
}

func (c *httpClient) upload(ctx context.Context, path, filename string, body io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return eris.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, body); err != nil {
		return eris.Wrap(err, "copy upload body")
	}
	if err := mw.Close(); err != nil {
		return eris.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.decode(req, out)
}

func (c *httpClient) decode(req *http.Request, out any) error {
	data, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}
	}
	if c.tokens != nil {
		if tok := c.tokens.Bearer(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}
