package request

import (
	"net/http"
	"strings"
)

// Method is an HTTP verb supported by the batch engine.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
	MethodDelete  Method = http.MethodDelete
	MethodPatch   Method = http.MethodPatch
)

var methods = map[Method]struct{}{
	MethodGet:     {},
	MethodPost:    {},
	MethodPut:     {},
	MethodHead:    {},
	MethodOptions: {},
	MethodDelete:  {},
	MethodPatch:   {},
}

// ParseMethod normalizes s to upper case and reports whether it is supported.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := methods[m]
	return m, ok
}

// Valid reports whether m is one of the supported verbs.
func (m Method) Valid() bool {
	_, ok := methods[m]
	return ok
}

func (m Method) String() string {
	return string(m)
}
