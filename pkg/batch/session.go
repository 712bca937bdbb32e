package batch

import (
	"bufio"
	"compress/gzip"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-faster/errors"

	"fanout/pkg/request"
)

// DialTimeout specifies maximum connection initialization time.
const DialTimeout = 5 * time.Second

// KeepAlive specifies interval between keep-alive probes.
const KeepAlive = 10 * time.Second

// TLSHandshakeTimeout specifies timeout of TLS handshake.
const TLSHandshakeTimeout = 5 * time.Second

// TransportFactory creates the round tripper for requests sent through proxy p,
// p is nil for direct requests. It is called at most once per proxy and batch.
type TransportFactory func(p *request.Proxy, tlsConfig *tls.Config) (http.RoundTripper, error)

// DefaultTransportFactory creates a fresh *http.Transport.
// Environment proxies are not used, compression is negotiated by the executor.
func DefaultTransportFactory(p *request.Proxy, tlsConfig *tls.Config) (http.RoundTripper, error) {
	dialer := &net.Dialer{
		Timeout:   DialTimeout,
		KeepAlive: KeepAlive,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: TLSHandshakeTimeout,
		DisableCompression:  true,
		MaxIdleConnsPerHost: DefaultSize,
	}
	if p == nil {
		return transport, nil
	}
	if p.IsSOCKS() {
		dial, err := p.DialContext(dialer)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dial
	} else {
		transport.Proxy = p.ProxyFunc()
	}
	return transport, nil
}

// session is the connection context of one batch.
type session struct {
	factory   TransportFactory
	tlsConfig *tls.Config

	lock       sync.Mutex
	transports map[string]http.RoundTripper
}

func newSession(factory TransportFactory, tlsConfig *tls.Config) (*session, error) {
	direct, err := factory(nil, tlsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create transport")
	}
	return &session{
		factory:    factory,
		tlsConfig:  tlsConfig,
		transports: map[string]http.RoundTripper{"": direct},
	}, nil
}

// client returns a client using the transport of the given proxy.
func (s *session) client(p *request.Proxy) (*http.Client, error) {
	var key string
	if p != nil {
		key = p.URL().String()
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	transport, ok := s.transports[key]
	if !ok {
		var err error
		if transport, err = s.factory(p, s.tlsConfig); err != nil {
			return nil, errors.Wrapf(err, "cannot create transport for proxy %s", p)
		}
		s.transports[key] = transport
	}
	return &http.Client{Transport: transport}, nil
}

// close releases idle connections of all transports.
func (s *session) close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, transport := range s.transports {
		if t, ok := transport.(interface{ CloseIdleConnections() }); ok {
			t.CloseIdleConnections()
		}
	}
}

// readBody reads the whole response body, decoding gzip and br content encodings.
// An empty body is returned as is, whatever Content-Encoding says.
func readBody(res *http.Response) ([]byte, error) {
	raw := bufio.NewReader(res.Body)
	if _, err := raw.Peek(1); errors.Is(err, io.EOF) {
		return []byte{}, nil
	}

	var body io.Reader = raw
	switch strings.ToLower(res.Header.Get("Content-Encoding")) {
	case "gzip":
		r, err := gzip.NewReader(raw)
		if err != nil {
			return nil, errors.Wrap(err, "cannot decode gzip response")
		}
		defer r.Close()
		body = r
	case "br":
		body = brotli.NewReader(raw)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read response body")
	}
	return content, nil
}
