package batch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"fanout/pkg/request"
)

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, &RunnerTestSuite{})
}

type RunnerTestSuite struct {
	suite.Suite
	transport *httpmock.MockTransport
	runner    *Runner
}

func (suite *RunnerTestSuite) SetupTest() {
	suite.transport = httpmock.NewMockTransport()
	logger := zaptest.NewLogger(suite.T(), zaptest.Level(zap.PanicLevel))

	var err error
	suite.runner, err = NewRunner(logger, WithTransportFactory(suite.mockFactory))
	suite.Require().NoError(err)
}

func (suite *RunnerTestSuite) mockFactory(*request.Proxy, *tls.Config) (http.RoundTripper, error) {
	return suite.transport, nil
}

func (suite *RunnerTestSuite) urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://example.com/item/%d", i)
	}
	return out
}

func (suite *RunnerTestSuite) Test_Run_orderPreserved() {
	urls := suite.urls(10)
	suite.transport.RegisterResponder(
		http.MethodGet, `=~^https://example\.com/item/`,
		func(req *http.Request) (*http.Response, error) {
			var i int
			_, _ = fmt.Sscanf(req.URL.Path, "/item/%d", &i)
			// later requests complete first
			time.Sleep(time.Duration(len(urls)-i) * 3 * time.Millisecond)
			return httpmock.NewStringResponse(http.StatusOK, req.URL.Path), nil
		},
	)

	reqs := make([]*request.Request, len(urls))
	for i, u := range urls {
		reqs[i] = request.Get(u)
	}

	var successCount atomic.Int64
	results, err := suite.runner.Run(
		context.Background(), reqs,
		WithSize(10),
		WithOnSuccess(func(*Response) { successCount.Add(1) }),
	)
	suite.Require().NoError(err)
	suite.Require().Len(results, len(urls))
	for i, res := range results {
		suite.Require().NotNil(res)
		suite.Equal(urls[i], res.URL())
		suite.Equal(http.StatusOK, res.StatusCode())
		text, ok := res.Text()
		suite.True(ok)
		suite.Equal(fmt.Sprintf("/item/%d", i), text)
	}
	suite.Eventually(func() bool { return successCount.Load() == int64(len(urls)) }, time.Second, 5*time.Millisecond)
}

func (suite *RunnerTestSuite) Test_Run_failedRequest() {
	suite.transport.RegisterResponder(
		http.MethodGet, "https://example.com/ok",
		httpmock.NewStringResponder(http.StatusOK, "ok"),
	)
	suite.transport.RegisterResponder(
		http.MethodGet, "https://unreachable.example/",
		httpmock.NewErrorResponder(errors.New("connection refused")),
	)

	reqs := []*request.Request{
		request.Get("https://example.com/ok"),
		request.Get("https://unreachable.example/"),
		request.Get("https://example.com/ok"),
	}

	failures := make(chan error, 3)
	results, err := suite.runner.Run(
		context.Background(), reqs,
		WithOnFailure(func(err error) { failures <- err }),
	)
	suite.Require().NoError(err)
	suite.Require().Len(results, 3)
	suite.NotNil(results[0])
	suite.Nil(results[1])
	suite.NotNil(results[2])

	select {
	case err := <-failures:
		var reqErr *RequestError
		suite.Require().ErrorAs(err, &reqErr)
		suite.Same(reqs[1], reqErr.Request)
		suite.Contains(err.Error(), "connection refused")
	case <-time.After(time.Second):
		suite.Fail("failure notification not received")
	}
	time.Sleep(20 * time.Millisecond)
	suite.Empty(failures)
}

func (suite *RunnerTestSuite) Test_Run_filter() {
	suite.transport.RegisterResponder(
		http.MethodGet, `=~^https://example\.com/`,
		httpmock.NewStringResponder(http.StatusOK, "ok"),
	)

	reqs := []*request.Request{
		request.New("TRACE", "https://example.com/invalid"),
		request.Get("https://example.com/a"),
		nil,
		request.Get(""),
		request.Get("https://example.com/b"),
	}
	results, err := suite.runner.Run(context.Background(), reqs)
	suite.Require().NoError(err)
	suite.Require().Len(results, 2)
	suite.Equal("https://example.com/a", results[0].URL())
	suite.Equal("https://example.com/b", results[1].URL())
	suite.Equal(2, suite.transport.GetTotalCallCount())
}

func (suite *RunnerTestSuite) Test_Run_concurrencyBound() {
	const size, total = 3, 20
	var inFlight, maxInFlight atomic.Int64
	suite.transport.RegisterResponder(
		http.MethodGet, `=~^https://example\.com/`,
		func(req *http.Request) (*http.Response, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		},
	)

	reqs := make([]*request.Request, total)
	for i := range reqs {
		reqs[i] = request.Get(fmt.Sprintf("https://example.com/%d", i))
	}
	results, err := suite.runner.Run(context.Background(), reqs, WithSize(size))
	suite.Require().NoError(err)
	suite.Len(results, total)
	suite.LessOrEqual(maxInFlight.Load(), int64(size))
	suite.Greater(maxInFlight.Load(), int64(0))
}

func (suite *RunnerTestSuite) Test_Run_successNotificationDoesNotBlock() {
	suite.transport.RegisterResponder(
		http.MethodGet, `=~^https://example\.com/`,
		httpmock.NewStringResponder(http.StatusOK, "ok"),
	)

	release := make(chan struct{})
	defer close(release)
	var started sync.WaitGroup
	started.Add(2)
	results, err := suite.runner.Run(
		context.Background(),
		[]*request.Request{request.Get("https://example.com/1"), request.Get("https://example.com/2")},
		WithSize(1),
		WithOnSuccess(func(*Response) {
			started.Done()
			<-release
		}),
	)
	suite.Require().NoError(err)
	suite.Len(results, 2)
	started.Wait()
}

func (suite *RunnerTestSuite) Test_Run_panickingCallback() {
	suite.transport.RegisterResponder(
		http.MethodGet, `=~^https://example\.com/`,
		httpmock.NewStringResponder(http.StatusOK, "ok"),
	)
	results, err := suite.runner.Run(
		context.Background(),
		[]*request.Request{request.Get("https://example.com/1")},
		WithOnSuccess(func(*Response) { panic("callback failed") }),
	)
	suite.Require().NoError(err)
	suite.Require().Len(results, 1)
	suite.NotNil(results[0])
	time.Sleep(10 * time.Millisecond)
}

func (suite *RunnerTestSuite) Test_Run_withoutContent() {
	suite.transport.RegisterResponder(
		http.MethodGet, "https://example.com/json",
		httpmock.NewStringResponder(http.StatusOK, `{"a":1}`),
	)
	results, err := suite.runner.Run(
		context.Background(),
		[]*request.Request{request.Get("https://example.com/json")},
		WithIncludeContent(false),
	)
	suite.Require().NoError(err)
	suite.Require().NotNil(results[0])
	suite.Nil(results[0].Content())
	_, ok := results[0].Text()
	suite.False(ok)
	_, err = results[0].JSON()
	suite.ErrorIs(err, ErrNoContent)
}

func (suite *RunnerTestSuite) Test_Run_requestMapping() {
	suite.transport.RegisterResponder(
		http.MethodGet, `=~^https://example\.com/get`,
		func(req *http.Request) (*http.Response, error) {
			suite.Equal("q=1&r=two", req.URL.RawQuery)
			suite.Empty(req.Header.Get("Content-Type"))
			suite.Equal(DefaultUserAgent, req.Header.Get("User-Agent"))
			suite.Equal("*/*", req.Header.Get("Accept"))
			suite.Equal("yes", req.Header.Get("X-Custom"))
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		},
	)
	suite.transport.RegisterResponder(
		http.MethodPost, "https://example.com/post",
		func(req *http.Request) (*http.Response, error) {
			suite.Equal(request.ContentTypeJSON, req.Header.Get("Content-Type"))
			body, _ := io.ReadAll(req.Body)
			suite.JSONEq(`{"foo":"bar"}`, string(body))
			return httpmock.NewStringResponse(http.StatusCreated, ""), nil
		},
	)
	suite.transport.RegisterResponder(
		http.MethodPut, "https://example.com/put",
		func(req *http.Request) (*http.Response, error) {
			suite.Equal(request.ContentTypeForm, req.Header.Get("Content-Type"))
			body, _ := io.ReadAll(req.Body)
			suite.Equal("a=1", string(body))
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		},
	)
	suite.transport.RegisterResponder(
		http.MethodDelete, "https://example.com/delete",
		func(req *http.Request) (*http.Response, error) {
			values, found := req.Header["User-Agent"]
			suite.True(found)
			suite.Equal([]string{""}, values)
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		},
	)

	reqs := []*request.Request{
		request.Get(
			"https://example.com/get",
			request.WithParam("q", "1"),
			request.WithParam("r", "two"),
			request.WithHeader("X-Custom", "yes"),
		),
		request.Post("https://example.com/post", request.WithJSON(map[string]string{"foo": "bar"})),
		request.Put("https://example.com/put", request.WithForm(map[string]any{"a": 1})),
		request.New(http.MethodDelete, "https://example.com/delete", request.WithSkipHeaders("User-Agent")),
	}
	results, err := suite.runner.Run(context.Background(), reqs)
	suite.Require().NoError(err)
	suite.Require().Len(results, 4)
	suite.Equal(http.StatusOK, results[0].StatusCode())
	suite.Equal(http.StatusCreated, results[1].StatusCode())
	suite.Equal(http.StatusOK, results[2].StatusCode())
	suite.Equal(http.StatusNoContent, results[3].StatusCode())
}

func (suite *RunnerTestSuite) Test_Run_bodyConflict() {
	failures := make(chan error, 1)
	results, err := suite.runner.Run(
		context.Background(),
		[]*request.Request{request.Post("https://example.com/post", request.WithText("a"), request.WithJSON(1))},
		WithOnFailure(func(err error) { failures <- err }),
	)
	suite.Require().NoError(err)
	suite.Require().Len(results, 1)
	suite.Nil(results[0])
	suite.ErrorIs(<-failures, ErrBodyConflict)
	suite.Equal(0, suite.transport.GetTotalCallCount())
}

func (suite *RunnerTestSuite) Test_Run_brotliContent() {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write([]byte(`{"compressed":true}`))
	suite.Require().NoError(err)
	suite.Require().NoError(w.Close())

	suite.transport.RegisterResponder(
		http.MethodGet, "https://example.com/br",
		func(req *http.Request) (*http.Response, error) {
			res := httpmock.NewBytesResponse(http.StatusOK, buf.Bytes())
			res.Header.Set("Content-Encoding", "br")
			return res, nil
		},
	)
	results, err := suite.runner.Run(context.Background(), []*request.Request{request.Get("https://example.com/br")})
	suite.Require().NoError(err)
	data, err := results[0].JSON()
	suite.Require().NoError(err)
	suite.Equal(map[string]any{"compressed": true}, data)
}

func (suite *RunnerTestSuite) Test_Run_setupErrors() {
	results, err := suite.runner.Run(context.Background(), nil, WithSize(0))
	suite.ErrorIs(err, ErrInvalidSize)
	suite.Nil(results)

	_, err = suite.runner.Run(context.Background(), nil, WithTimeout(-time.Second))
	suite.ErrorIs(err, ErrInvalidTimeout)

	factoryErr := errors.New("no transport")
	_, err = suite.runner.Run(
		context.Background(),
		[]*request.Request{request.Get("https://example.com")},
		WithTransportFactory(func(*request.Proxy, *tls.Config) (http.RoundTripper, error) {
			return nil, factoryErr
		}),
	)
	suite.ErrorIs(err, factoryErr)
}

func (suite *RunnerTestSuite) Test_Run_transportPerProxy() {
	suite.transport.RegisterResponder(
		http.MethodGet, `=~^https://example\.com/`,
		httpmock.NewStringResponder(http.StatusOK, "ok"),
	)

	var lock sync.Mutex
	var proxies []string
	factory := func(p *request.Proxy, _ *tls.Config) (http.RoundTripper, error) {
		lock.Lock()
		defer lock.Unlock()
		if p == nil {
			proxies = append(proxies, "direct")
		} else {
			proxies = append(proxies, p.String())
		}
		return suite.transport, nil
	}

	reqs := []*request.Request{
		request.Get("https://example.com/1", request.WithProxy("http://p1.example:3128")),
		request.Get("https://example.com/2", request.WithProxy("http://p1.example:3128")),
		request.Get("https://example.com/3", request.WithProxy("socks5://p2.example:1080")),
		request.Get("https://example.com/4", request.WithProxy("bogus://p3.example:1")),
	}
	results, err := suite.runner.Run(context.Background(), reqs, WithTransportFactory(factory))
	suite.Require().NoError(err)
	suite.Len(results, 4)
	suite.ElementsMatch([]string{"direct", "http://p1.example:3128", "socks5://p2.example:1080"}, proxies)
}

func TestRun_timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	failures := make(chan error, 2)
	results, err := Run(
		context.Background(),
		[]*request.Request{request.Get(server.URL + "/fast"), request.Get(server.URL + "/slow")},
		WithTimeout(100*time.Millisecond),
		WithOnFailure(func(err error) { failures <- err }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0] == nil || results[1] != nil {
		t.Fatalf("unexpected results: %v", results)
	}
	select {
	case err := <-failures:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("unexpected failure: %s", err)
		}
	case <-time.After(time.Second):
		t.Fatal("failure notification not received")
	}
}

func (suite *RunnerTestSuite) Test_Run_panickingTransport() {
	suite.transport.RegisterResponder(
		http.MethodGet, "https://example.com/boom",
		func(*http.Request) (*http.Response, error) {
			panic("transport broken")
		},
	)
	suite.transport.RegisterResponder(
		http.MethodGet, "https://example.com/ok",
		httpmock.NewStringResponder(http.StatusOK, "ok"),
	)

	failures := make(chan error, 2)
	results, err := suite.runner.Run(
		context.Background(),
		[]*request.Request{request.Get("https://example.com/boom"), request.Get("https://example.com/ok")},
		WithSize(1),
		WithOnFailure(func(err error) { failures <- err }),
	)
	suite.Require().NoError(err)
	suite.Require().Len(results, 2)
	suite.Nil(results[0])
	suite.NotNil(results[1])

	select {
	case err := <-failures:
		var reqErr *RequestError
		suite.Require().ErrorAs(err, &reqErr)
		suite.Contains(err.Error(), "transport broken")
	case <-time.After(time.Second):
		suite.Fail("failure notification not received")
	}
}

func TestRun_emptyEncodedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", r.URL.Query().Get("enc"))
		if r.URL.Path == "/no-content" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reqs := []*request.Request{
		request.Head(server.URL + "/?enc=gzip"),
		request.Head(server.URL + "/?enc=br"),
		request.Get(server.URL + "/no-content?enc=gzip"),
		request.Get(server.URL + "/?enc=gzip"),
		request.Get(server.URL + "/?enc=br"),
	}

	failures := make(chan error, len(reqs))
	results, err := Run(context.Background(), reqs, WithOnFailure(func(err error) { failures <- err }))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("unexpected results: %v", results)
	}
	for i, res := range results {
		if res == nil {
			t.Fatalf("request %d resolved to nil", i)
		}
		text, ok := res.Text()
		if !ok || text != "" {
			t.Fatalf("request %d: unexpected text %q", i, text)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if len(failures) != 0 {
		t.Fatalf("unexpected failure: %s", <-failures)
	}
}
