package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

const maxWebhookResponseBytes = 1 << 20

// callWebhook issues the outbound HTTP request with constant-interval
// retries. URL, headers, and body are interpolated against the session's
// variables before the first attempt. The returned value is the decoded
// response body (JSON object when parseable, raw string otherwise) for
// optional capture into a variable.
func (e *Engine) callWebhook(ctx context.Context, bag variables.Bag, cfg flow.WebhookConfig) (any, error) {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	url := variables.Interpolate(cfg.URL, bag)
	body := variables.Interpolate(cfg.Body, bag)

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = e.webhookTimeout
	}

	attempt := func() (any, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if body != "" && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, variables.Interpolate(v, bag))
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}

		var decoded map[string]any
		if json.Unmarshal(data, &decoded) == nil {
			return decoded, nil
		}
		return string(data), nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryBackoff), uint64(cfg.RetryCount)),
		ctx,
	)
	return backoff.RetryWithData(attempt, policy)
}
