package app

import (
	"net/url"
	"strings"
)

// widgetOrigins decides which pages may embed a confetti widget.
// Patterns are exact hosts, "*.domain" suffixes or "host:*" for any port.
type widgetOrigins struct {
	exact    map[string]struct{}
	suffixes []string
	hosts    []string
}

func newWidgetOrigins(patterns []string) widgetOrigins {
	o := widgetOrigins{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case strings.HasPrefix(p, "*."):
			o.suffixes = append(o.suffixes, p[1:])
		case strings.HasSuffix(p, ":*"):
			o.hosts = append(o.hosts, strings.TrimSuffix(p, "*"))
		default:
			o.exact[p] = struct{}{}
		}
	}
	return o
}

func (o widgetOrigins) allow(origin string) bool {
	host := strings.ToLower(originHost(origin))
	if host == "" {
		return false
	}
	if _, ok := o.exact[host]; ok {
		return true
	}
	for _, s := range o.suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	for _, h := range o.hosts {
		if strings.HasPrefix(host, h) {
			return true
		}
	}
	return false
}

// originHost returns "host[:port]" of an Origin header value.
func originHost(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(origin)
	}
	return u.Host
}
