package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aphrodite-labs/phishguard/internal/domain"
)

// MLClient consults an optional external classifier service. It is a
// best-effort collaborator: callers fall back to the heuristic scorer on
// any error, so nothing here surfaces failures to the end user.
type MLClient struct {
	baseURL string
	client  *http.Client
}

type mlResponse struct {
	Result string `json:"result"`
}

var phishingRe = regexp.MustCompile(`(?i)phishing`)

// NewMLClient builds a client for the given base URL. A zero timeout
// defaults to 3 seconds; the classifier must never stall a scan request.
func NewMLClient(baseURL string, timeout time.Duration) *MLClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MLClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a classifier endpoint is configured.
func (m *MLClient) Enabled() bool {
	return m != nil && m.baseURL != ""
}

// Classify asks the external model for a verdict on content.
func (m *MLClient) Classify(ctx context.Context, content string) (*domain.ScanVerdict, error) {
	endpoint := fmt.Sprintf("%s/predict?feature=%s", m.baseURL, url.QueryEscape(content))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build ml request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ml request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ml classifier returned status %d", resp.StatusCode)
	}

	var body mlResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ml response: %w", err)
	}

	looksPhishing := phishingRe.MatchString(body.Result)
	score := 10
	if looksPhishing {
		score = 80
	}
	result := body.Result
	if result == "" {
		result = "Unknown"
	}

	return &domain.ScanVerdict{
		IsPhishing: looksPhishing,
		Score:      score,
		Reasons: []string{
			"ML model verdict: " + result,
			"ML endpoint: " + m.baseURL,
		},
		Timestamp: time.Now().UTC(),
		Model:     ModelML,
	}, nil
}
