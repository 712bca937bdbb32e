package batch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/text/encoding/charmap"
)

// json - replacement of the standard encoding/json library.
var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// Response is the immutable outcome of one completed request.
// It may be read concurrently by the result slice owner and the OnSuccess target.
type Response struct {
	url        string
	statusCode int
	header     map[string]string
	content    []byte
	text       *string
}

func newResponse(url string, statusCode int, header http.Header, content []byte) *Response {
	r := &Response{
		url:        url,
		statusCode: statusCode,
		header:     make(map[string]string, len(header)),
		content:    content,
	}
	for k, values := range header {
		r.header[k] = strings.Join(values, ", ")
	}
	if content != nil {
		text := decodeText(content)
		r.text = &text
	}
	return r
}

// decodeText maps every byte to one character (ISO-8859-1).
func decodeText(content []byte) string {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(text)
}

// URL returns the URL the request was made to.
func (r *Response) URL() string {
	return r.url
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	return r.statusCode
}

// Header returns the response headers, multiple values are joined by ", ".
func (r *Response) Header() map[string]string {
	out := make(map[string]string, len(r.header))
	for k, v := range r.header {
		out[k] = v
	}
	return out
}

// Content returns the raw body, nil if body capture was disabled.
// The returned slice must not be modified.
func (r *Response) Content() []byte {
	return r.content
}

// Text returns the decoded body. The second value is false if body capture was disabled.
func (r *Response) Text() (string, bool) {
	if r.text == nil {
		return "", false
	}
	return *r.text, true
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.statusCode > 199 && r.statusCode < 300
}

// JSON parses the decoded text as a JSON object.
func (r *Response) JSON() (map[string]any, error) {
	var out map[string]any
	if err := r.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeJSON parses the decoded text into v.
func (r *Response) DecodeJSON(v any) error {
	if r.text == nil {
		return ErrNoContent
	}
	if err := json.UnmarshalFromString(*r.text, v); err != nil {
		return errors.Wrapf(err, "cannot decode JSON response from %q", r.url)
	}
	return nil
}

func (r *Response) String() string {
	return fmt.Sprintf(`<Response %d ["%s"]>`, r.statusCode, r.url)
}
