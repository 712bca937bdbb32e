package request

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/cast"
	"golang.org/x/net/proxy"
	"h12.io/socks"
)

// Supported proxy schemes.
const (
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
	SchemeSOCKS4 = "socks4"
	SchemeSOCKS5 = "socks5"
)

// DialContextFunc matches http.Transport.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Proxy is a resolved proxy configuration.
type Proxy struct {
	u *url.URL
}

// ResolveProxy parses a "<scheme>://[user:pass@]host:port" proxy string.
// It returns nil if the string is not a valid proxy URL or its scheme
// is not one of http, https, socks4 and socks5.
func ResolveProxy(raw string) *Proxy {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil
	}
	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case SchemeHTTP, SchemeHTTPS, SchemeSOCKS4, SchemeSOCKS5:
		return &Proxy{u: u}
	default:
		return nil
	}
}

// ResolveProxies resolves a scheme -> proxy URL mapping.
// Only the first inserted value is used, the keys are not matched
// against the scheme of the target URL.
func ResolveProxies(m *orderedmap.OrderedMap) *Proxy {
	if m == nil {
		return nil
	}
	keys := m.Keys()
	if len(keys) == 0 {
		return nil
	}
	v, _ := m.Get(keys[0])
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil
	}
	return ResolveProxy(s)
}

// Scheme returns the lower-case proxy scheme.
func (p *Proxy) Scheme() string {
	return p.u.Scheme
}

// URL returns a copy of the proxy URL, including credentials.
func (p *Proxy) URL() *url.URL {
	clone := *p.u
	if p.u.User != nil {
		user := *p.u.User
		clone.User = &user
	}
	return &clone
}

// IsSOCKS reports whether the proxy is reached by a SOCKS dialer
// rather than by the transport's HTTP proxy support.
func (p *Proxy) IsSOCKS() bool {
	return p.u.Scheme == SchemeSOCKS4 || p.u.Scheme == SchemeSOCKS5
}

// ProxyFunc returns the http.Transport.Proxy function for http and https proxies.
// It returns nil for SOCKS proxies.
func (p *Proxy) ProxyFunc() func(*http.Request) (*url.URL, error) {
	if p.IsSOCKS() {
		return nil
	}
	return http.ProxyURL(p.URL())
}

// DialContext returns the dial function connecting through the proxy.
// For http and https proxies the forward dialer is returned unchanged.
func (p *Proxy) DialContext(forward *net.Dialer) (DialContextFunc, error) {
	switch p.u.Scheme {
	case SchemeSOCKS5:
		d, err := proxy.FromURL(p.URL(), forward)
		if err != nil {
			return nil, errors.Wrapf(err, "socks5 proxy %s", p)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd.DialContext, nil
		}
		return func(_ context.Context, network, addr string) (net.Conn, error) {
			return d.Dial(network, addr)
		}, nil
	case SchemeSOCKS4:
		u := p.URL()
		if forward != nil && forward.Timeout > 0 {
			q := u.Query()
			q.Set("timeout", forward.Timeout.String())
			u.RawQuery = q.Encode()
		}
		dial := socks.Dial(u.String())
		return func(_ context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}, nil
	default:
		return forward.DialContext, nil
	}
}

// String returns the proxy URL with the password redacted.
func (p *Proxy) String() string {
	return p.u.Redacted()
}
