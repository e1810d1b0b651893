package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenStream opens a server-sent-events stream at path. The request is not
// subject to the request timeout; cancel ctx or close the body to end it.
func (c *HTTPClient) OpenStream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Kind: KindTransport, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &APIError{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode,
			Message: http.StatusText(resp.StatusCode)}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		return nil, &APIError{Kind: KindTransport, Status: resp.StatusCode,
			Err: fmt.Errorf("unexpected content type %q", ct)}
	}
	return resp.Body, nil
}
