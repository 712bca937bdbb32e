// Command fanout sends one batch of HTTP requests and prints the responses.
//
//	fanout -c 5 -t 2s https://example.com/a https://example.com/b
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jessevdk/go-flags"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"fanout/internal/logger"
	"fanout/pkg/batch"
	"fanout/pkg/request"
)

type options struct {
	Size         int               `short:"c" long:"concurrency" default:"10" description:"number of requests in flight"`
	Timeout      time.Duration     `short:"t" long:"timeout" default:"0s" description:"per-request timeout, 0 means none"`
	NoContent    bool              `long:"no-content" description:"do not read response bodies"`
	Method       string            `short:"X" long:"request" default:"GET" description:"HTTP method"`
	Proxy        string            `short:"x" long:"proxy" description:"proxy URL: http, https, socks4 or socks5"`
	Headers      map[string]string `short:"H" long:"header" description:"request header as name:value"`
	Data         string            `short:"d" long:"data" description:"text request body"`
	Print        bool              `short:"p" long:"print" description:"print response text"`
	Verbose      bool              `short:"v" long:"verbose" description:"log every request"`
	PollInterval time.Duration     `long:"poll" default:"10ms" description:"result polling interval"`
	Args         struct {
		URLs []string `positional-arg-name:"URL" required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logg := zap.NewNop()
	if opts.Verbose {
		logg = logger.New()
		defer logg.Sync() //nolint:errcheck
	}

	if err := run(ctx, opts, logg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run sends the batch on a Handle and polls it until the results are ready.
func run(ctx context.Context, opts options, logg *zap.Logger, stdout, stderr io.Writer) error {
	var lock sync.Mutex
	runner, err := batch.NewRunner(
		logg,
		batch.WithSize(opts.Size),
		batch.WithTimeout(opts.Timeout),
		batch.WithIncludeContent(!opts.NoContent),
		batch.WithOnFailure(func(err error) {
			lock.Lock()
			defer lock.Unlock()
			fmt.Fprintln(stderr, err)
		}),
	)
	if err != nil {
		return err
	}

	reqs, err := newRequests(opts)
	if err != nil {
		return err
	}

	start := time.Now()
	h := runner.Start(ctx, reqs)

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	result, finished := h.Poll()
	for !finished {
		<-ticker.C
		result, finished = h.Poll()
	}
	elapsed := time.Since(start)
	if result.Err != nil {
		return result.Err
	}

	lock.Lock()
	defer lock.Unlock()
	for _, res := range result.Responses {
		if res == nil {
			fmt.Fprintln(stdout, "<failed>")
			continue
		}
		fmt.Fprintln(stdout, res)
		if text, ok := res.Text(); ok && opts.Print {
			fmt.Fprintln(stdout, text)
		}
	}
	fmt.Fprintf(stdout, "%d requests in %s\n", len(result.Responses), elapsed.Round(time.Millisecond))
	return nil
}

func newRequests(opts options) ([]*request.Request, error) {
	reqOpts := []request.Option{request.WithHeaders(opts.Headers)}
	if opts.Proxy != "" {
		if request.ResolveProxy(opts.Proxy) == nil {
			return nil, errors.Errorf("unsupported proxy %q", opts.Proxy)
		}
		reqOpts = append(reqOpts, request.WithProxy(opts.Proxy))
	}
	if opts.Data != "" {
		reqOpts = append(reqOpts, request.WithText(opts.Data))
	}

	reqs := make([]*request.Request, 0, len(opts.Args.URLs))
	for _, u := range opts.Args.URLs {
		req := request.New(opts.Method, u, reqOpts...)
		if req == nil {
			return nil, errors.Errorf("unsupported method %q", opts.Method)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
