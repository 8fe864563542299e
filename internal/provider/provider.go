// Package provider adapts third-party website metadata APIs to a single
// Provider interface. Adapters absorb every failure: a failed fetch yields
// empty metadata plus an error that is only used for diagnostics.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// Provider names.
const (
	Microlink = "microlink"
	Ahfi      = "ahfi"
	Xxapi     = "xxapi"
	Jxcxin    = "jxcxin"
	Uapis     = "uapis"
)

// Known lists every provider name in a stable order.
var Known = []string{Microlink, Ahfi, Xxapi, Jxcxin, Uapis}

// Default endpoints.
const (
	MicrolinkEndpoint = "https://api.microlink.io/"
	AhfiEndpoint      = "https://api.ahfi.cn/api/websiteinfo"
	XxapiEndpoint     = "https://v2.xxapi.cn/api/tdk"
	JxcxinEndpoint    = "https://apis.jxcxin.cn/api/title"
	UapisEndpoint     = "https://uapis.cn/api/v1/webparse/metadata"
)

// Request defaults shared by all adapters.
const (
	DefaultTimeout   = 8 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; SiteCard/1.0)"
)

var (
	// ErrTransport wraps network failures, timeouts, and aborted requests.
	ErrTransport = errors.New("transport error")
	// ErrRateLimited is returned for HTTP 429 responses and in-body rate-limit codes.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotJSON is returned when the response content type is not JSON.
	ErrNotJSON = errors.New("response is not json")
	// ErrDecode is returned when the JSON body cannot be decoded.
	ErrDecode = errors.New("decode response")
	// ErrUnexpectedPayload is returned when the envelope signals failure.
	ErrUnexpectedPayload = errors.New("unexpected payload")
)

// StatusError reports a non-2xx HTTP status other than 429.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Provider fetches display metadata for a URL.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, target string) (metadata.WebsiteData, error)
}

// HTTPDoer abstracts HTTP calls for testability.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures an adapter.
type Options struct {
	// Endpoint overrides the provider's default base URL.
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
	Client    HTTPDoer
	Logger    *zap.Logger
}

func (o Options) withDefaults(endpoint string) Options {
	if o.Endpoint == "" {
		o.Endpoint = endpoint
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// fail logs err and returns it alongside empty metadata.
func fail(logger *zap.Logger, name, target string, err error) (metadata.WebsiteData, error) {
	logger.Debug("provider fetch failed",
		zap.String("provider", name),
		zap.String("url", target),
		zap.Error(err),
	)
	return metadata.WebsiteData{}, fmt.Errorf("%s: %w", name, err)
}
