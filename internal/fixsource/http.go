package fixsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/planfix/planfix/internal/issue"
)

var wirejson = jsoniter.ConfigCompatibleWithStandardLibrary

// lookupRequest is the wire shape sent to the remote lookup service.
type lookupRequest struct {
	Ref   string         `json:"ref"`
	Nodes []string       `json:"nodes"`
	Facts map[string]any `json:"facts,omitempty"`
}

// lookupResponse is one resolution returned by the service: a node subset
// plus the fix spec that applies to it.
type lookupResponse struct {
	Nodes []string `json:"nodes"`
	Spec  Spec     `json:"fix"`
}

// HTTPLookup resolves fixes through a remote lookup service. Calls are rate
// limited and bounded by a per-request timeout; retry policy is left to the
// caller, matching the provider contract.
type HTTPLookup struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewHTTPLookup builds a client for the service at endpoint. rps caps the
// sustained request rate; zero or negative disables limiting.
func NewHTTPLookup(endpoint string, timeout time.Duration, rps float64, logger *zap.Logger) *HTTPLookup {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPLookup{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		log:      logger.Named("fixsource.http"),
	}
}

// FindFixes implements Provider.
func (h *HTTPLookup) FindFixes(ctx context.Context, iss issue.Issue, nodes []string, facts map[string]any) ([]Resolution, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := wirejson.Marshal(lookupRequest{Ref: iss.Ref(), Nodes: nodes, Facts: facts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fix lookup for %s failed: %w", iss.Ref(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fix lookup for %s returned status %d", iss.Ref(), resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup response: %w", err)
	}

	var wire []lookupResponse
	if err := wirejson.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}

	h.log.Debug("Remote lookup complete",
		zap.String("issue", iss.Ref()),
		zap.Int("resolutions", len(wire)),
		zap.Duration("elapsed", time.Since(start)),
	)

	out := make([]Resolution, 0, len(wire))
	for _, w := range wire {
		f, err := w.Spec.Fix()
		if err != nil {
			return nil, fmt.Errorf("invalid fix in lookup response for %s: %w", iss.Ref(), err)
		}
		out = append(out, Resolution{Nodes: w.Nodes, Fix: f})
	}
	return out, nil
}
