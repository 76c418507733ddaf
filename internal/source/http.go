package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ybbus/httpretry"

	"orderlake/internal/model"
)

// HTTPSource fetches the order list from the orders API. Connection errors
// and 5xx answers are retried by the client before Fetch gives up.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, retries int) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: httpretry.NewDefaultClient(httpretry.WithMaxRetryCount(retries)),
	}
}

// NewHTTPSourceWith is only for tests to inject a client.
func NewHTTPSourceWith(url string, client *http.Client) *HTTPSource {
	return &HTTPSource{url: url, client: client}
}

func (h *HTTPSource) Fetch(ctx context.Context, since *time.Time) ([]model.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	req.Header.Set("Accept", "application/json")
	if since != nil {
		q := req.URL.Query()
		q.Set("since", since.UTC().Format(time.RFC3339))
		req.URL.RawQuery = q.Encode()
	}

	log.Printf("source: requesting orders from %s", h.url)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, h.url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("get orders: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	records, err := decodeList(body)
	if err != nil {
		return nil, err
	}
	// the API may ignore the since parameter
	if since != nil {
		records = FilterSince(records, *since)
		log.Printf("source: %d orders after incremental filter", len(records))
	}
	return records, nil
}
