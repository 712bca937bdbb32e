// Package request defines immutable descriptors of pending HTTP calls.
//
// Descriptors are created by the verb builders (Get, Post, ...) which all
// funnel into New. An unsupported method yields a nil descriptor instead of
// an error, so malformed entries can be filtered out of a batch.
package request

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/cast"
)

const (
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeText        = "text/plain; charset=utf-8"
	ContentTypeForm        = "application/x-www-form-urlencoded"
	ContentTypeJSON        = "application/json"
)

// HeaderContentType is suppressed when a request carries no body.
const HeaderContentType = "Content-Type"

// Param is one query parameter.
type Param struct {
	Key   string
	Value string
}

// Request is an immutable description of one pending HTTP call.
type Request struct {
	method      Method
	url         string
	params      []Param
	body        []byte
	contentType string
	json        any
	header      map[string]string
	proxy       *Proxy
	skipHeaders []string
}

// Option configures a Request under construction.
type Option func(o *options)

type options struct {
	params      []Param
	header      map[string]string
	body        []byte
	hasBody     bool
	contentType string
	json        any
	proxy       string
	proxies     *orderedmap.OrderedMap
	skipHeaders []string
}

// WithParams adds query parameters, sorted by key.
func WithParams(params map[string]string) Option {
	return func(o *options) {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			o.params = append(o.params, Param{Key: k, Value: params[k]})
		}
	}
}

// WithParam appends a single query parameter, order is preserved.
func WithParam(key, value string) Option {
	return func(o *options) {
		o.params = append(o.params, Param{Key: key, Value: value})
	}
}

// WithHeaders sets multiple request headers.
func WithHeaders(header map[string]string) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(map[string]string, len(header))
		}
		maps.Copy(o.header, header)
	}
}

// WithHeader sets a single request header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(map[string]string)
		}
		o.header[key] = value
	}
}

// WithBody sets a raw request body. A nil body means no body.
func WithBody(body []byte) Option {
	return func(o *options) {
		if body == nil {
			o.body, o.hasBody, o.contentType = nil, false, ""
			return
		}
		o.body, o.hasBody, o.contentType = append([]byte{}, body...), true, ContentTypeOctetStream
	}
}

// WithText sets a plain text request body.
func WithText(text string) Option {
	return func(o *options) {
		o.body, o.hasBody, o.contentType = []byte(text), true, ContentTypeText
	}
}

// WithForm sets a form-encoded request body.
// Values are converted to strings, slices produce repeated keys.
func WithForm(form map[string]any) Option {
	return func(o *options) {
		values := make(url.Values, len(form))
		for k, v := range form {
			switch v := v.(type) {
			case []string:
				values[k] = append(values[k], v...)
			case []any:
				values[k] = append(values[k], cast.ToStringSlice(v)...)
			default:
				values.Add(k, cast.ToString(v))
			}
		}
		o.body, o.hasBody, o.contentType = []byte(values.Encode()), true, ContentTypeForm
	}
}

// WithJSON sets a value to be sent JSON encoded. A nil value means no JSON body.
func WithJSON(v any) Option {
	return func(o *options) {
		o.json = v
	}
}

// WithProxy sets a proxy string, see ResolveProxy.
func WithProxy(proxy string) Option {
	return func(o *options) {
		o.proxy, o.proxies = proxy, nil
	}
}

// WithProxies sets a scheme -> proxy URL mapping, see ResolveProxies.
func WithProxies(proxies *orderedmap.OrderedMap) Option {
	return func(o *options) {
		o.proxy, o.proxies = "", proxies
	}
}

// WithSkipHeaders lists headers that must not be generated automatically.
func WithSkipHeaders(names ...string) Option {
	return func(o *options) {
		o.skipHeaders = append(o.skipHeaders, names...)
	}
}

// New creates a request descriptor.
// It returns nil if the method is not supported.
func New(method, rawURL string, opts ...Option) *Request {
	return build(method, rawURL, collect(opts))
}

// Get creates a GET descriptor. Body options are ignored.
func Get(rawURL string, opts ...Option) *Request {
	return build(http.MethodGet, rawURL, withoutBody(collect(opts)))
}

// Head creates a HEAD descriptor. Body options are ignored.
func Head(rawURL string, opts ...Option) *Request {
	return build(http.MethodHead, rawURL, withoutBody(collect(opts)))
}

// Options creates an OPTIONS descriptor. Body options are ignored.
func Options(rawURL string, opts ...Option) *Request {
	return build(http.MethodOptions, rawURL, withoutBody(collect(opts)))
}

// Delete creates a DELETE descriptor. Body options are ignored.
func Delete(rawURL string, opts ...Option) *Request {
	return build(http.MethodDelete, rawURL, withoutBody(collect(opts)))
}

// Post creates a POST descriptor.
func Post(rawURL string, opts ...Option) *Request {
	return build(http.MethodPost, rawURL, collect(opts))
}

// Put creates a PUT descriptor.
func Put(rawURL string, opts ...Option) *Request {
	return build(http.MethodPut, rawURL, collect(opts))
}

// Patch creates a PATCH descriptor.
func Patch(rawURL string, opts ...Option) *Request {
	return build(http.MethodPatch, rawURL, collect(opts))
}

func collect(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func withoutBody(o *options) *options {
	o.body, o.hasBody, o.contentType, o.json = nil, false, "", nil
	return o
}

func build(method, rawURL string, o *options) *Request {
	skip := make([]string, 0, len(o.skipHeaders)+1)
	skip = append(skip, o.skipHeaders...)
	if !o.hasBody && o.json == nil {
		skip = append(skip, HeaderContentType)
	}

	m, ok := ParseMethod(method)
	if !ok {
		return nil
	}

	r := &Request{
		method:      m,
		url:         rawURL,
		params:      o.params,
		json:        o.json,
		header:      o.header,
		skipHeaders: skip,
	}
	if o.hasBody {
		r.body, r.contentType = o.body, o.contentType
	}
	switch {
	case o.proxies != nil:
		r.proxy = ResolveProxies(o.proxies)
	case o.proxy != "":
		r.proxy = ResolveProxy(o.proxy)
	}
	return r
}

// Method returns the HTTP method.
func (r *Request) Method() Method {
	return r.method
}

// URL returns the target URL as given to the builder.
func (r *Request) URL() string {
	return r.url
}

// Params returns a copy of the query parameters.
func (r *Request) Params() []Param {
	return append([]Param(nil), r.params...)
}

// Body returns the raw body, nil if the request has none.
func (r *Request) Body() []byte {
	if r.body == nil {
		return nil
	}
	return append([]byte{}, r.body...)
}

// ContentType returns the content type implied by the raw body option.
func (r *Request) ContentType() string {
	return r.contentType
}

// JSON returns the value to be sent JSON encoded, nil if none.
func (r *Request) JSON() any {
	return r.json
}

// Header returns a copy of the caller headers.
func (r *Request) Header() map[string]string {
	return maps.Clone(r.header)
}

// Proxy returns the resolved proxy, nil if none.
func (r *Request) Proxy() *Proxy {
	return r.proxy
}

// SkipHeaders returns a copy of the header names excluded from auto-generation.
func (r *Request) SkipHeaders() []string {
	return append([]string(nil), r.skipHeaders...)
}

// Skips reports whether the header name is excluded from auto-generation.
func (r *Request) Skips(header string) bool {
	for _, name := range r.skipHeaders {
		if strings.EqualFold(name, header) {
			return true
		}
	}
	return false
}

// TargetURL returns the URL with the query parameters appended in order.
func (r *Request) TargetURL() (*url.URL, error) {
	u, err := url.Parse(r.url)
	if err != nil {
		return nil, err
	}
	if len(r.params) == 0 {
		return u, nil
	}
	var b strings.Builder
	b.WriteString(u.RawQuery)
	for _, p := range r.params {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	u.RawQuery = b.String()
	return u, nil
}

func (r *Request) String() string {
	return fmt.Sprintf(`<Request [%s "%s"]>`, r.method, r.url)
}
