// Package upstream is the HTTP client for the diagnosis backend. The backend
// owns the model, scan/report analysis, chat and accounts; this package only
// knows its JSON contract.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Variant selects which family of upload endpoints is used.
type Variant string

const (
	VariantAnalyze Variant = "analyze" // /api/analyze-scan, /api/analyze-report
	VariantUpload  Variant = "upload"  // /api/upload-scan, /api/upload-report
)

// ParseVariant accepts "analyze" or "upload" case-insensitively.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantAnalyze, VariantUpload:
		return v, nil
	default:
		return "", fmt.Errorf("unknown upload variant %q", s)
	}
}

// ServerError is an "error" field returned by the backend. Its message is
// meant for the user and is shown verbatim.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// StatusError is a non-2xx response without a usable error field.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsServerError reports whether err carries a backend message and returns it.
func IsServerError(err error) (string, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Message, true
	}
	return "", false
}

// File is a single upload part.
type File struct {
	Name    string
	Content io.Reader
}

type Client struct {
	baseURL string
	http    *http.Client
	variant Variant
	logger  *zap.Logger
}

func New(baseURL string, timeout time.Duration, variant Variant, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if variant == "" {
		variant = VariantAnalyze
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		variant: variant,
		logger:  logger,
	}
}

func (c *Client) Variant() Variant { return c.variant }

// Symptoms fetches the symptom catalog.
func (c *Client) Symptoms(ctx context.Context) ([]string, error) {
	var out symptomsResponse
	if err := c.getJSON(ctx, "/api/symptoms", nil, &out); err != nil {
		return nil, err
	}
	return out.Symptoms, nil
}

// Diagnose posts the selected symptoms in the order given.
func (c *Client) Diagnose(ctx context.Context, symptoms []string) (*Diagnosis, error) {
	var out Diagnosis
	if err := c.postJSON(ctx, "/api/diagnose", diagnoseRequest{Symptoms: symptoms}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Precautions(ctx context.Context, disease string) ([]string, error) {
	var out precautionsResponse
	if err := c.getJSON(ctx, "/api/precautions", url.Values{"disease": {disease}}, &out); err != nil {
		return nil, err
	}
	return out.Precautions, nil
}

func (c *Client) Doctors(ctx context.Context, disease string) ([]Doctor, error) {
	var out doctorsResponse
	if err := c.getJSON(ctx, "/api/doctors", url.Values{"disease": {disease}}, &out); err != nil {
		return nil, err
	}
	return out.Doctors, nil
}

// AnalyzeScan uploads a scan image with its scan type.
func (c *Client) AnalyzeScan(ctx context.Context, f File, scanType string) (*ScanResult, error) {
	fields := map[string]string{"scan_type": scanType}
	body, err := c.postMultipart(ctx, "/api/"+string(c.variant)+"-scan", f, fields)
	if err != nil {
		return nil, err
	}

	if c.variant == VariantAnalyze {
		var out ScanPredictions
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode scan predictions: %w", err)
		}
		return &ScanResult{Predictions: &out}, nil
	}

	var out scanUploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode scan upload: %w", err)
	}
	if strings.EqualFold(out.Status, "error") {
		return nil, &ServerError{Message: out.Message}
	}
	data := out.Data
	if data == nil {
		data = &out.ScanData
	}
	return &ScanResult{Upload: data}, nil
}

// AnalyzeReport uploads a medical report.
func (c *Client) AnalyzeReport(ctx context.Context, f File) (*ReportResult, error) {
	body, err := c.postMultipart(ctx, "/api/"+string(c.variant)+"-report", f, nil)
	if err != nil {
		return nil, err
	}

	if c.variant == VariantAnalyze {
		var out reportInfoResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode report info: %w", err)
		}
		return &ReportResult{Info: out.ReportInfo}, nil
	}

	var out reportUploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode report upload: %w", err)
	}
	if strings.EqualFold(out.Status, "error") {
		return nil, &ServerError{Message: out.Message}
	}
	summary := out.Data
	if summary == nil {
		summary = &out.ReportSummary
	}
	return &ReportResult{Summary: summary}, nil
}

// Chat sends one user message. Only the latest message is sent; the backend
// keeps no visible session correlation.
func (c *Client) Chat(ctx context.Context, message string) (*ChatTurn, error) {
	var out chatResponse
	if err := c.postJSON(ctx, "/api/chatbot", chatRequest{Message: message}, &out, true); err != nil {
		return nil, err
	}
	if out.Response != nil {
		return out.Response, nil
	}
	return &out.ChatTurn, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.auth(ctx, "/api/login", loginRequest{Email: email, Password: password})
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	return c.auth(ctx, "/api/register", registerRequest{Name: name, Email: email, Password: password})
}

// auth decodes the {success, message} body whatever the status code, since
// the backend answers rejected credentials with 4xx and a message.
func (c *Client) auth(ctx context.Context, path string, payload any) (*AuthResult, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var out AuthResult
	if err := json.Unmarshal(body, &out); err != nil {
		if status < 200 || status > 299 {
			return nil, &StatusError{Code: status, Body: truncate(body)}
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.decode(req, out, false)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any, strict bool) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return c.decode(req, out, strict)
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// postMultipart sends f as the "file" part. Any non-2xx status is a transport
// failure for uploads; a 2xx body with an error field is a ServerError.
func (c *Client) postMultipart(ctx context.Context, path string, f File, fields map[string]string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", f.Name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return nil, fmt.Errorf("copy file data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	status, respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Code: status, Body: truncate(respBody)}
	}
	if msg := errorField(respBody); msg != "" {
		return nil, &ServerError{Message: msg}
	}
	return respBody, nil
}

// decode reads the response into out. With strict set, a non-2xx status is
// reported before the error field is looked at.
func (c *Client) decode(req *http.Request, out any, strict bool) error {
	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	ok := status >= 200 && status <= 299
	if strict && !ok {
		return &StatusError{Code: status, Body: truncate(body)}
	}
	if msg := errorField(body); msg != "" {
		return &ServerError{Message: msg}
	}
	if !ok {
		return &StatusError{Code: status, Body: truncate(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("upstream call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return resp.StatusCode, body, nil
}

func errorField(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(env.Error, &msg); err != nil {
		// non-string error payloads are shown as raw JSON
		return string(env.Error)
	}
	return msg
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
