package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

// DefaultURL is the production usage endpoint.
const DefaultURL = "https://my.apavital.ro/api/get_usage"

const maxBodySize = 4 << 20

var (
	ErrAuthExpired       = errors.New("apavital token expired")
	ErrFetch             = errors.New("error communicating with apavital api")
	ErrMalformedResponse = errors.New("malformed apavital response")
)

// Credentials identify the metering location and authorize the request.
type Credentials struct {
	ClientCode string
	Token      string
}

// MaskedClientCode keeps the first four characters of the client code.
func (c Credentials) MaskedClientCode() string {
	if len(c.ClientCode) <= 4 {
		return "****"
	}
	return c.ClientCode[:4] + "****"
}

type UsageClient struct {
	apiURL     string
	timeout    time.Duration
	httpClient *http.Client
	location   *time.Location
	logger     *logrus.Logger
}

func NewUsageClient(apiURL string, timeout time.Duration, logger *logrus.Logger) *UsageClient {
	if apiURL == "" {
		apiURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UsageClient{
		apiURL:     apiURL,
		timeout:    timeout,
		httpClient: &http.Client{},
		location:   time.Local,
		logger:     logger,
	}
}

// WithLocation sets the zone used to interpret reading timestamps.
func (c *UsageClient) WithLocation(loc *time.Location) *UsageClient {
	if loc != nil {
		c.location = loc
	}
	return c
}

// FetchUsage performs one get_usage call and parses the readings.
//
// Errors wrap one of ErrAuthExpired, ErrFetch or ErrMalformedResponse.
func (c *UsageClient) FetchUsage(ctx context.Context, creds Credentials) (*models.Usage, error) {
	resp, err := c.post(ctx, creds)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return &models.Usage{Average: float64(resp.Average), Median: float64(resp.Median)}, nil
	}

	var raw []models.RawReading
	if err := json.Unmarshal(resp.Data, &raw); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrMalformedResponse, err)
	}

	readings, err := parseReadings(raw, c.location)
	if err != nil {
		return nil, err
	}

	return &models.Usage{
		Readings: readings,
		Average:  float64(resp.Average),
		Median:   float64(resp.Median),
	}, nil
}

// Validate checks that the credentials are accepted by the provider.
// A response without a "data" key is reported as ErrFetch.
func (c *UsageClient) Validate(ctx context.Context, creds Credentials) error {
	resp, err := c.post(ctx, creds)
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		return fmt.Errorf("%w: response has no data", ErrFetch)
	}
	return nil
}

func (c *UsageClient) post(ctx context.Context, creds Credentials) (*models.UsageResponse, error) {
	body, contentType, err := usageForm(creds.ClientCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"client_code": creds.MaskedClientCode(),
		"status":      resp.StatusCode,
		"duration":    time.Since(start).String(),
	}).Debug("apavital usage request")

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: please provide a new token", ErrAuthExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: got %d", ErrFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var usage models.UsageResponse
	if err := json.Unmarshal(data, &usage); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &usage, nil
}

func usageForm(clientCode string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"clientCode", clientCode},
		{"ctrAdmin", "false"},
		{"ctrEmail", ""},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
