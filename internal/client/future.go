package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Future is the handle for a request started with GetAsync.
// It resolves exactly once; every Await after that returns the same result.
type Future struct {
	ID        string
	URL       string
	StartedAt time.Time

	done chan struct{}
	once sync.Once
	resp *Response
	err  error
}

func newFuture(url string) *Future {
	return &Future{
		ID:        uuid.NewString(),
		URL:       url,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Resolved returns an already completed future. Useful for fakes and for
// short-circuiting a request that must not be sent.
func Resolved(resp *Response, err error) *Future {
	f := newFuture("")
	f.resolve(resp, err)
	return f
}

func (f *Future) resolve(resp *Response, err error) {
	f.once.Do(func() {
		f.resp = resp
		f.err = err
		close(f.done)
	})
}

// Await blocks until the request has completed.
func (f *Future) Await() (*Response, error) {
	<-f.done
	return f.resp, f.err
}

// Done is closed once the request has completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Pending reports whether the request is still in flight.
func (f *Future) Pending() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}
