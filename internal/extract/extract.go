// Package extract turns the threat feed response into a blocklist set.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/urlsec-blocklist/internal/blocklist"
	"github.com/JakeFAU/urlsec-blocklist/internal/fetcher"
	"github.com/JakeFAU/urlsec-blocklist/internal/normalize"
)

// DefaultEndpoint is the feed queried when no endpoint is configured.
const DefaultEndpoint = "https://urlsec.qq.com/cgi/risk/getList"

// ErrMissingResult is returned when the fetcher has no result for the endpoint.
var ErrMissingResult = errors.New("no fetch result for endpoint")

// ErrNullRecord is returned when the data array holds a null element.
var ErrNullRecord = errors.New("null record")

// Getter fetches a set of endpoints. *fetcher.Fetcher implements it.
type Getter interface {
	GetAll(ctx context.Context, endpoints []string) (map[string]fetcher.Result, error)
}

type record struct {
	SrcURL    string `json:"src_url"`
	EvilClass string `json:"evilclass"`
}

type response struct {
	Data []*record `json:"data"`
}

// Extractor queries one feed endpoint.
type Extractor struct {
	getter   Getter
	endpoint string
	logger   *zap.Logger
}

// New builds an Extractor. An empty endpoint selects DefaultEndpoint.
func New(getter Getter, endpoint string, logger *zap.Logger) *Extractor {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{getter: getter, endpoint: endpoint, logger: logger}
}

// Endpoint returns the queried URL.
func (e *Extractor) Endpoint() string {
	return e.endpoint
}

// Extract fetches the endpoint and returns the cleaned (url, category) pairs.
// On failure it logs the cause and returns an empty set with the error.
func (e *Extractor) Extract(ctx context.Context) (*blocklist.Set, error) {
	set, err := e.extract(ctx)
	if err != nil {
		e.logger.Error("URL extraction failed",
			zap.String("endpoint", e.endpoint),
			zap.Error(err),
		)
		return blocklist.NewSet(), err
	}
	return set, nil
}

func (e *Extractor) extract(ctx context.Context) (*blocklist.Set, error) {
	results, err := e.getter.GetAll(ctx, []string{e.endpoint})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.endpoint, err)
	}
	res, ok := results[e.endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingResult, e.endpoint)
	}
	if res.Failed() {
		return nil, fmt.Errorf("fetch %s: %w", e.endpoint, res.Err)
	}
	return Parse(res.Body)
}

// Parse decodes a feed body. A body without a data array yields an empty set.
// A null element fails the whole body, like any other malformed record.
func Parse(body []byte) (*blocklist.Set, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	set := blocklist.NewSet()
	for i, r := range resp.Data {
		if r == nil {
			return nil, fmt.Errorf("decode response: data[%d]: %w", i, ErrNullRecord)
		}
		if r.SrcURL == "" {
			continue
		}
		// Add drops URLs that clean down to nothing.
		set.Add(normalize.Clean(r.SrcURL), r.EvilClass)
	}
	return set, nil
}
