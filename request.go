package relaysix

import (
	"context"
	"net/http"
	"net/url"
)

// Request is the subset of the originating HTTP handshake request
// exposed to connectAuthorizer and middleware, so application code
// never holds a reference the transport layer still owns.
type Request struct {
	r *http.Request

	Method     string
	URL        *url.URL
	Header     http.Header
	Host       string
	RemoteAddr string
	RequestURI string
}

func (req *Request) Cookie(name string) (*http.Cookie, error) { return req.r.Cookie(name) }
func (req *Request) Cookies() []*http.Cookie                  { return req.r.Cookies() }
func (req *Request) Context() context.Context                 { return req.r.Context() }
func (req *Request) Referer() string                          { return req.r.Referer() }
func (req *Request) UserAgent() string                        { return req.r.UserAgent() }

func newRequest(r *http.Request) *Request {
	return &Request{
		r:          r,
		Method:     r.Method,
		URL:        r.URL,
		Header:     r.Header,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		RequestURI: r.RequestURI,
	}
}
