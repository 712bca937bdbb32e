package models

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanout/pkg/request"
)

func TestJobRequest_Descriptor(t *testing.T) {
	tests := []struct {
		name            string
		input           JobRequest
		wantMethod      request.Method
		wantBody        string
		wantContentType string
		wantJSON        bool
	}{
		{
			name:       "get",
			input:      JobRequest{Method: "get", URL: "https://example.com", Params: map[string]string{"a": "1"}},
			wantMethod: request.MethodGet,
		},
		{
			name:            "text_data",
			input:           JobRequest{Method: http.MethodPost, URL: "https://example.com", Data: json.RawMessage(`"hello"`)},
			wantMethod:      request.MethodPost,
			wantBody:        "hello",
			wantContentType: request.ContentTypeText,
		},
		{
			name:            "form_data",
			input:           JobRequest{Method: http.MethodPut, URL: "https://example.com", Data: json.RawMessage(`{"a":"x","b":2}`)},
			wantMethod:      request.MethodPut,
			wantBody:        "a=x&b=2",
			wantContentType: request.ContentTypeForm,
		},
		{
			name:       "json",
			input:      JobRequest{Method: http.MethodPatch, URL: "https://example.com", JSON: json.RawMessage(`{"foo":"bar"}`)},
			wantMethod: request.MethodPatch,
			wantJSON:   true,
		},
		{
			name:       "null_json",
			input:      JobRequest{Method: http.MethodPost, URL: "https://example.com", JSON: json.RawMessage(`null`)},
			wantMethod: request.MethodPost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.input.Descriptor()
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, req.Method())
			assert.Equal(t, tt.input.URL, req.URL())
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, string(req.Body()))
				assert.Equal(t, tt.wantContentType, req.ContentType())
			} else {
				assert.Nil(t, req.Body())
			}
			assert.Equal(t, tt.wantJSON, req.JSON() != nil)
		})
	}
}

func TestJobRequest_Descriptor_errors(t *testing.T) {
	tests := []struct {
		name  string
		input JobRequest
	}{
		{"empty_url", JobRequest{Method: http.MethodGet, URL: " "}},
		{"bad_method", JobRequest{Method: "TEST", URL: "https://example.com"}},
		{"data_and_json", JobRequest{
			Method: http.MethodPost,
			URL:    "https://example.com",
			Data:   json.RawMessage(`"a"`),
			JSON:   json.RawMessage(`{}`),
		}},
		{"data_array", JobRequest{Method: http.MethodPost, URL: "https://example.com", Data: json.RawMessage(`[1]`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.input.Descriptor()
			assert.Error(t, err)
		})
	}
}
