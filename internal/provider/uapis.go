package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// UapisClient calls uapis.cn, which has answered with three different
// envelope shapes over time.
type UapisClient struct {
	jsonClient
}

// NewUapis creates the uapis adapter.
func NewUapis(opts Options) *UapisClient {
	return &UapisClient{jsonClient{opts: opts.withDefaults(UapisEndpoint)}}
}

// Name implements Provider.
func (c *UapisClient) Name() string { return Uapis }

type uapisResponse struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Code        *int          `json:"code"`
	Success     *bool         `json:"success"`
	Data        *pageMetadata `json:"data"`
}

// Fetch implements Provider.
func (c *UapisClient) Fetch(ctx context.Context, target string) (metadata.WebsiteData, error) {
	var resp uapisResponse
	if err := c.getJSON(ctx, target, nil, &resp); err != nil {
		return fail(c.opts.Logger, Uapis, target, err)
	}
	switch {
	case strings.TrimSpace(resp.Title) != "" || strings.TrimSpace(resp.Description) != "":
		return metadata.WebsiteData{
			Title:       strings.TrimSpace(resp.Title),
			Description: strings.TrimSpace(resp.Description),
		}, nil
	case resp.Code != nil && *resp.Code == http.StatusOK && resp.Data != nil,
		resp.Success != nil && *resp.Success && resp.Data != nil:
		data := resp.Data.toData()
		data.Icon = ""
		return data, nil
	default:
		return fail(c.opts.Logger, Uapis, target, fmt.Errorf("%w: unrecognized envelope", ErrUnexpectedPayload))
	}
}
