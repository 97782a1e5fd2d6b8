package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultLlamaParseURL = "https://api.cloud.llamaindex.ai"
	requestTimeout       = 60 * time.Second
	defaultPollInterval  = 2 * time.Second
	defaultPollBudget    = 5 * time.Minute
	maxRetries           = 3
	initialBackoff       = 500 * time.Millisecond
)

// Job states reported by the parsing service.
const (
	jobSuccess  = "SUCCESS"
	jobError    = "ERROR"
	jobCanceled = "CANCELED"
)

// LlamaParse extracts Markdown through the LlamaParse cloud API: upload the
// file, poll the job until it finishes and fetch the Markdown result.
type LlamaParse struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewLlamaParse creates a client for the given API key. An empty baseURL
// selects the public endpoint.
func NewLlamaParse(apiKey, baseURL string) *LlamaParse {
	if baseURL == "" {
		baseURL = defaultLlamaParseURL
	}
	return &LlamaParse{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		pollInterval: defaultPollInterval,
		pollBudget:   defaultPollBudget,
	}
}

// WithPolling overrides the poll interval and overall budget.
func (l *LlamaParse) WithPolling(interval, budget time.Duration) *LlamaParse {
	l.pollInterval = interval
	l.pollBudget = budget
	return l
}

type jobStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error_message,omitempty"`
}

type markdownResult struct {
	Markdown string `json:"markdown"`
}

func (l *LlamaParse) Extract(ctx context.Context, path string) (string, error) {
	body, contentType, err := multipartFile(path)
	if err != nil {
		return "", err
	}

	var job jobStatus
	if err := l.do(ctx, http.MethodPost, "/api/parsing/upload", body, contentType, &job); err != nil {
		return "", fmt.Errorf("uploading to llamaparse: %w", err)
	}
	if job.ID == "" {
		return "", errors.New("llamaparse: upload returned no job id")
	}

	if err := l.wait(ctx, job.ID); err != nil {
		return "", err
	}

	var res markdownResult
	if err := l.do(ctx, http.MethodGet, "/api/parsing/job/"+job.ID+"/result/markdown", nil, "", &res); err != nil {
		return "", fmt.Errorf("fetching llamaparse result: %w", err)
	}
	return res.Markdown, nil
}

func (l *LlamaParse) wait(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, l.pollBudget)
	defer cancel()

	for {
		var st jobStatus
		if err := l.do(ctx, http.MethodGet, "/api/parsing/job/"+id, nil, "", &st); err != nil {
			return fmt.Errorf("polling llamaparse job %s: %w", id, err)
		}

		switch st.Status {
		case jobSuccess:
			return nil
		case jobError, jobCanceled:
			msg := st.Error
			if msg == "" {
				msg = strings.ToLower(st.Status)
			}
			return fmt.Errorf("llamaparse job %s failed: %s", id, msg)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("llamaparse job %s still %s: %w", id, strings.ToLower(st.Status), ctx.Err())
		case <-time.After(l.pollInterval):
		}
	}
}

func multipartFile(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// do performs one API call, retrying on HTTP 429 with exponential backoff,
// and decodes the JSON response into out.
func (l *LlamaParse) do(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var lastErr error
	for attempt := range maxRetries {
		err := l.doOnce(ctx, method, path, body, contentType, out)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (l *LlamaParse) doOnce(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
