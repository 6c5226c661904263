package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
)

// DefaultTimeout bounds one classify call.
const DefaultTimeout = 20 * time.Second

// ErrUnavailable wraps transport failures and non-2xx answers.
var ErrUnavailable = errors.New("classifier unavailable")

// HTTPClient calls the classifier over HTTP: POST {base}/classify with
// {"text", "user_id"}.
type HTTPClient struct {
	HTTPClient *http.Client
	BaseURL    *url.URL
}

// NewHTTPClient parses baseURL. A nil httpClient gets one with
// DefaultTimeout.
func NewHTTPClient(httpClient *http.Client, baseURL string) (*HTTPClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid classifier url %q", baseURL)
	}
	return &HTTPClient{HTTPClient: httpClient, BaseURL: u}, nil
}

type classifyRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

func (c *HTTPClient) Classify(ctx context.Context, owner ledger.OwnerID, text string) (Result, error) {
	body, err := json.Marshal(classifyRequest{Text: text, UserID: string(owner)})
	if err != nil {
		return Result{}, err
	}
	endpoint := c.BaseURL.JoinPath("classify")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	res, err := ParseResult(data)
	if err != nil {
		return Result{}, err
	}
	logctx.From(ctx).DebugContext(ctx, "message classified",
		"owner", owner, "intent", res.Intent, "transactions", len(res.Transactions), "elapsed", time.Since(start))
	return res, nil
}
