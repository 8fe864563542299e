package provider

import (
	"context"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// XxapiClient calls the v2.xxapi.cn TDK endpoint.
type XxapiClient struct {
	jsonClient
}

// NewXxapi creates the xxapi adapter.
func NewXxapi(opts Options) *XxapiClient {
	return &XxapiClient{jsonClient{opts: opts.withDefaults(XxapiEndpoint)}}
}

// Name implements Provider.
func (c *XxapiClient) Name() string { return Xxapi }

// Fetch implements Provider.
func (c *XxapiClient) Fetch(ctx context.Context, target string) (metadata.WebsiteData, error) {
	var env codeEnvelope
	if err := c.getJSON(ctx, target, nil, &env); err != nil {
		return fail(c.opts.Logger, Xxapi, target, err)
	}
	data, err := env.unwrap()
	if err != nil {
		return fail(c.opts.Logger, Xxapi, target, err)
	}
	data.Icon = ""
	return data, nil
}
