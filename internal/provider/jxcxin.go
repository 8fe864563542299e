package provider

import (
	"context"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// JxcxinClient calls apis.jxcxin.cn.
type JxcxinClient struct {
	jsonClient
}

// NewJxcxin creates the jxcxin adapter.
func NewJxcxin(opts Options) *JxcxinClient {
	return &JxcxinClient{jsonClient{opts: opts.withDefaults(JxcxinEndpoint)}}
}

// Name implements Provider.
func (c *JxcxinClient) Name() string { return Jxcxin }

// Fetch implements Provider.
func (c *JxcxinClient) Fetch(ctx context.Context, target string) (metadata.WebsiteData, error) {
	var env codeEnvelope
	if err := c.getJSON(ctx, target, nil, &env); err != nil {
		return fail(c.opts.Logger, Jxcxin, target, err)
	}
	data, err := env.unwrap()
	if err != nil {
		return fail(c.opts.Logger, Jxcxin, target, err)
	}
	data.Icon = ""
	return data, nil
}
