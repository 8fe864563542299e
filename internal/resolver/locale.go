package resolver

import (
	"strings"

	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/provider"
)

// DefaultDomesticDomains are hostname suffixes of sites best served by
// mainland-China providers.
var DefaultDomesticDomains = []string{
	".cn", ".com.cn", ".net.cn", ".org.cn", ".gov.cn", ".edu.cn",
	".hk", ".mo", ".tw",
	"bilibili.com", "zhihu.com", "weibo.com", "baidu.com", "taobao.com",
	"jd.com", "douyin.com", "toutiao.com", "kuaishou.com",
}

// Default provider orders.
var (
	DefaultDomesticOrder      = []string{provider.Ahfi, provider.Jxcxin, provider.Xxapi, provider.Microlink, provider.Uapis}
	DefaultInternationalOrder = []string{provider.Jxcxin, provider.Ahfi, provider.Microlink, provider.Xxapi, provider.Uapis}
)

// Locale classifies URLs as domestic or international.
type Locale struct {
	domains []string
}

// NewLocale builds a Locale from domain patterns. A pattern starting with "."
// matches any host ending with it; other patterns match the host itself and
// its subdomains.
func NewLocale(domains []string) Locale {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return Locale{domains: normalized}
}

// IsDomestic reports whether rawURL's host matches a domestic pattern.
func (l Locale) IsDomestic(rawURL string) bool {
	host := metadata.Hostname(rawURL)
	if host == "" {
		return false
	}
	for _, d := range l.domains {
		if strings.HasPrefix(d, ".") {
			if strings.HasSuffix(host, d) {
				return true
			}
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
