package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

const maxBodyBytes = 1 << 20

type jsonClient struct {
	opts Options
}

// getJSON issues a GET to the endpoint with url=target plus extra query
// values, bounded by the configured timeout, and decodes the JSON body into out.
func (c jsonClient) getJSON(ctx context.Context, target string, extra url.Values, out any) error {
	endpoint, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", target)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	endpoint.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return fmt.Errorf("%w: content-type %q", ErrNotJSON, ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// codeEnvelope is the {code, data} shape shared by several providers.
type codeEnvelope struct {
	Code int           `json:"code"`
	Msg  string        `json:"msg,omitempty"`
	Data *pageMetadata `json:"data"`
}

func (e codeEnvelope) unwrap() (metadata.WebsiteData, error) {
	if e.Code != http.StatusOK || e.Data == nil {
		return metadata.WebsiteData{}, fmt.Errorf("%w: code %d %s", ErrUnexpectedPayload, e.Code, e.Msg)
	}
	return e.Data.toData(), nil
}

type pageMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"ico_url,omitempty"`
}

func (p *pageMetadata) toData() metadata.WebsiteData {
	if p == nil {
		return metadata.WebsiteData{}
	}
	return metadata.WebsiteData{
		Title:       strings.TrimSpace(p.Title),
		Description: strings.TrimSpace(p.Description),
		Icon:        strings.TrimSpace(p.Icon),
	}
}
