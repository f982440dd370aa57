package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultCameraPort = 8081
	DefaultPoolSize   = 10
)

type LogFunc func(format string, args ...any)

// CameraClient talks to the HTTP service every camera unit runs.
// It holds no per-camera state; the address is passed on every call.
type CameraClient struct {
	HTTP   *resty.Client
	Config ClientConfig

	pool  *semaphore.Weighted
	logFn LogFunc
}

type ClientConfig struct {
	Port     int  // camera service port
	PoolSize int  // max requests in flight from GetAsync
	Debug    bool // log every async completion
	LogFunc  LogFunc
}

// Response is what the camera answered. Body is fully read.
type Response struct {
	StatusCode int
	Body       []byte
}

func New(cfg ClientConfig) *CameraClient {
	if cfg.Port == 0 {
		cfg.Port = DefaultCameraPort
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	logFn := cfg.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}

	r := resty.New()
	r.SetHeader("Accept", "application/json")
	r.SetLogger(restyLogger{logFn: logFn, debug: cfg.Debug})

	return &CameraClient{
		HTTP:   r,
		Config: cfg,
		pool:   semaphore.NewWeighted(int64(cfg.PoolSize)),
		logFn:  logFn,
	}
}

// ServiceURL returns the base URL of the camera service, always ending in "/".
// An address that already names a port is used unchanged.
func (c *CameraClient) ServiceURL(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return fmt.Sprintf("http://%s/", address)
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(address, fmt.Sprint(c.Config.Port)))
}

func (c *CameraClient) url(address, path string) string {
	return c.ServiceURL(address) + strings.TrimLeft(path, "/")
}

// Get performs one blocking GET. A non-200 answer is not an error here;
// the caller decides what a status code means.
func (c *CameraClient) Get(ctx context.Context, address, path string, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := c.url(address, path)
	resp, err := c.HTTP.R().
		SetContext(ctx).
		Get(url)

	if err != nil {
		return nil, classify(url, err)
	}

	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}

// GetAsync starts the same request as Get without blocking the caller.
// The request waits for a pool slot in its own goroutine, and its timeout
// starts once it holds one. There is no way to cancel it.
func (c *CameraClient) GetAsync(address, path string, timeout time.Duration) *Future {
	f := newFuture(c.url(address, path))

	go func() {
		ctx := context.Background()
		_ = c.pool.Acquire(ctx, 1)
		defer c.pool.Release(1)

		resp, err := c.Get(ctx, address, path, timeout)
		f.resolve(resp, err)

		if c.Config.Debug {
			if err != nil {
				c.logFn("client: [%s] %s failed after %s: %v", f.ID, f.URL, time.Since(f.StartedAt), err)
			} else {
				c.logFn("client: [%s] %s completed after %s: %d %s", f.ID, f.URL, time.Since(f.StartedAt), resp.StatusCode, resp.Body)
			}
		}
	}()

	return f
}

// Download streams a file from the camera into localPath. The file only
// appears once the whole body has been written.
func (c *CameraClient) Download(ctx context.Context, address, remotePath, localPath string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := c.url(address, remotePath)
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)

	if err != nil {
		return classify(url, err)
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return &StatusError{URL: url, Code: resp.StatusCode()}
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return classify(url, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), localPath)
}

// restyLogger routes resty's own diagnostics into our log function.
type restyLogger struct {
	logFn LogFunc
	debug bool
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logFn("resty: "+strings.TrimRight(format, "\n"), v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logFn("resty: "+strings.TrimRight(format, "\n"), v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.logFn("resty: "+strings.TrimRight(format, "\n"), v...)
	}
}
