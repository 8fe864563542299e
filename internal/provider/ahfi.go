package provider

import (
	"context"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// AhfiClient calls api.ahfi.cn, which also reports a favicon.
type AhfiClient struct {
	jsonClient
}

// NewAhfi creates the ahfi adapter.
func NewAhfi(opts Options) *AhfiClient {
	return &AhfiClient{jsonClient{opts: opts.withDefaults(AhfiEndpoint)}}
}

// Name implements Provider.
func (c *AhfiClient) Name() string { return Ahfi }

// Fetch implements Provider.
func (c *AhfiClient) Fetch(ctx context.Context, target string) (metadata.WebsiteData, error) {
	var env codeEnvelope
	if err := c.getJSON(ctx, target, nil, &env); err != nil {
		return fail(c.opts.Logger, Ahfi, target, err)
	}
	data, err := env.unwrap()
	if err != nil {
		return fail(c.opts.Logger, Ahfi, target, err)
	}
	return data, nil
}
