package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// Tripper is notified when the provider signals rate limiting or becomes
// unreachable.
type Tripper interface {
	Block(ctx context.Context, reason string)
}

// MicrolinkClient calls api.microlink.io. Rate limits and transport failures
// trip the breaker.
type MicrolinkClient struct {
	jsonClient
	tripper Tripper
}

// NewMicrolink creates the microlink adapter. tripper may be nil.
func NewMicrolink(opts Options, tripper Tripper) *MicrolinkClient {
	return &MicrolinkClient{
		jsonClient: jsonClient{opts: opts.withDefaults(MicrolinkEndpoint)},
		tripper:    tripper,
	}
}

// Name implements Provider.
func (c *MicrolinkClient) Name() string { return Microlink }

type microlinkResponse struct {
	Status  string        `json:"status"`
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
	Data    *pageMetadata `json:"data"`
}

// Fetch implements Provider.
func (c *MicrolinkClient) Fetch(ctx context.Context, target string) (metadata.WebsiteData, error) {
	var resp microlinkResponse
	extra := url.Values{"data": []string{"title,description"}}
	if err := c.getJSON(ctx, target, extra, &resp); err != nil {
		c.maybeTrip(ctx, err)
		return fail(c.opts.Logger, Microlink, target, err)
	}

	switch {
	case resp.Status == "success" && resp.Data != nil:
		data := resp.Data.toData()
		data.Icon = ""
		return data, nil
	case resp.Status == "fail" && isRateLimitCode(resp.Code):
		c.trip(ctx, fmt.Sprintf("rate-limit error (%s)", resp.Code))
		return fail(c.opts.Logger, Microlink, target, fmt.Errorf("%w: %s", ErrRateLimited, resp.Code))
	default:
		err := fmt.Errorf("%w: status %q code %q %s", ErrUnexpectedPayload, resp.Status, resp.Code, resp.Message)
		return fail(c.opts.Logger, Microlink, target, err)
	}
}

func (c *MicrolinkClient) maybeTrip(ctx context.Context, err error) {
	switch {
	case errors.Is(err, ErrRateLimited):
		c.trip(ctx, "429 rate limit")
	case errors.Is(err, ErrTransport):
		if ctx.Err() != nil {
			// the caller gave up; the provider did not fail
			return
		}
		c.trip(ctx, "blocked or network error")
	}
}

func (c *MicrolinkClient) trip(ctx context.Context, reason string) {
	if c.tripper == nil {
		return
	}
	c.tripper.Block(context.WithoutCancel(ctx), reason)
}

func isRateLimitCode(code string) bool {
	code = strings.ToUpper(code)
	return code == "ERATE" || code == "ERATELIMIT"
}
