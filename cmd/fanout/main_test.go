package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func parseArgs(t *testing.T, args ...string) options {
	t.Helper()
	var opts options
	_, err := flags.ParseArgs(&opts, args)
	require.NoError(t, err)
	return opts
}

func Test_parseArgs(t *testing.T) {
	opts := parseArgs(t, "-c", "3", "-t", "2s", "--no-content", "-X", "post", "-H", "X-Test:1", "https://example.com")
	assert.Equal(t, 3, opts.Size)
	assert.Equal(t, 2*time.Second, opts.Timeout)
	assert.True(t, opts.NoContent)
	assert.Equal(t, "post", opts.Method)
	assert.Equal(t, map[string]string{"X-Test": "1"}, opts.Headers)
	assert.Equal(t, []string{"https://example.com"}, opts.Args.URLs)

	_, err := flags.ParseArgs(&options{}, []string{})
	assert.Error(t, err)
}

func Test_run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("hello " + r.URL.Query().Get("i")))
	}))
	defer server.Close()

	opts := parseArgs(t, "-c", "2", "-p", server.URL+"/?i=1", server.URL+"/missing", server.URL+"/?i=3")
	logg := zaptest.NewLogger(t, zaptest.Level(zap.PanicLevel))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), opts, logg, &stdout, &stderr))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, `<Response 200 ["`+server.URL+`/?i=1"]>`, lines[0])
	assert.Equal(t, "hello 1", lines[1])
	assert.Equal(t, `<Response 404 ["`+server.URL+`/missing"]>`, lines[2])
	assert.Equal(t, "", lines[3])
	assert.Equal(t, `<Response 200 ["`+server.URL+`/?i=3"]>`, lines[4])
	assert.Equal(t, "hello 3", lines[5])
	assert.Contains(t, lines[6], "3 requests in")
	assert.Empty(t, stderr.String())
}

func Test_run_errors(t *testing.T) {
	logg := zaptest.NewLogger(t, zaptest.Level(zap.PanicLevel))
	var stdout, stderr bytes.Buffer

	opts := parseArgs(t, "-X", "TRACE", "https://example.com")
	assert.ErrorContains(t, run(context.Background(), opts, logg, &stdout, &stderr), "unsupported method")

	opts = parseArgs(t, "-x", "ftp://proxy.example", "https://example.com")
	assert.ErrorContains(t, run(context.Background(), opts, logg, &stdout, &stderr), "unsupported proxy")

	opts = parseArgs(t, "-c", "0", "https://example.com")
	assert.Error(t, run(context.Background(), opts, logg, &stdout, &stderr))
}
