package http

import (
	"net/textproto"
	"sync"
)

// Request is the parsed form of one HTTP/1.1 request netcore handed
// to ParseRequest. The six most common headers get dedicated fields
// so the router/servlet path never allocates a map for a typical
// request; anything else lands in ExtraHeaders, keyed by its
// canonical MIME form so a lowercase wire header still matches a
// caller's "Content-Type"-cased Header(key) lookup.
type Request struct {
	Method string
	Path   string
	Proto  string

	// Predefined common header fields (zero-allocation)
	ContentType   string
	ContentLength string
	UserAgent     string
	Accept        string
	Host          string
	Connection    string

	// Extra headers (allocated only when needed)
	ExtraHeaders map[string]string

	// Query parameters
	Query map[string]string

	// Request body
	Body []byte
}

var requestPool = sync.Pool{
	New: func() any {
		return &Request{
			Body: make([]byte, 0, 1024),
		}
	},
}

func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// Reset resets the request for reuse (memory not freed, just reset)
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.ContentType = ""
	r.ContentLength = ""
	r.UserAgent = ""
	r.Accept = ""
	r.Host = ""
	r.Connection = ""

	// Clear maps without freeing memory
	if r.ExtraHeaders != nil {
		for k := range r.ExtraHeaders {
			delete(r.ExtraHeaders, k)
		}
	}

	if r.Query != nil {
		for k := range r.Query {
			delete(r.Query, k)
		}
	}

	// Keep slice capacity, just reset length
	r.Body = r.Body[:0]
}

func ReleaseRequest(req *Request) {
	req.Reset()
	requestPool.Put(req)
}

// SetHeader records a header, canonicalizing key first so "content-type"
// and "Content-Type" land in the same slot regardless of how the peer
// cased it on the wire.
func (r *Request) SetHeader(key, value string) {
	switch textproto.CanonicalMIMEHeaderKey(key) {
	case "Content-Type":
		r.ContentType = value
	case "Content-Length":
		r.ContentLength = value
	case "User-Agent":
		r.UserAgent = value
	case "Accept":
		r.Accept = value
	case "Host":
		r.Host = value
	case "Connection":
		r.Connection = value
	default:
		if r.ExtraHeaders == nil {
			r.ExtraHeaders = make(map[string]string)
		}
		r.ExtraHeaders[textproto.CanonicalMIMEHeaderKey(key)] = value
	}
}

// GetHeader looks up a header by name, case-insensitively. Used by
// both StandardContext.Header and httpserver's WebSocket upgrade path
// so there is exactly one place that knows ExtraHeaders is keyed by
// canonical MIME form.
func (r *Request) GetHeader(key string) string {
	switch textproto.CanonicalMIMEHeaderKey(key) {
	case "Content-Type":
		return r.ContentType
	case "Content-Length":
		return r.ContentLength
	case "User-Agent":
		return r.UserAgent
	case "Accept":
		return r.Accept
	case "Host":
		return r.Host
	case "Connection":
		return r.Connection
	default:
		if r.ExtraHeaders == nil {
			return ""
		}
		return r.ExtraHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	}
}
