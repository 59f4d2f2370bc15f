package http

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Context defines the HTTP request context interface
type Context interface {
	// Request information
	Method() string
	Path() string
	Param(key string) string
	Query(key string) string
	Header(key string) string
	Body() []byte
	SetParam(key, value string)

	// Response methods
	String(code int, s string)
	JSON(code int, v any)
	Bytes(code int, data []byte)
	Data(code int, contentType string, data []byte)
	Error(code int, message string)
	Success(data any)
	ServeFile(filePath string) error

	// Binding
	Bind(v any) error

	// Connection access
	Conn() net.Conn
}

// StandardContext is the standard context implementation
type StandardContext struct {
	paramKeys   [4]string
	paramValues [4]string
	paramCount  int

	// Map overflow for more than 4 parameters
	paramMapOverflow map[string]string

	// Request object
	request *Request
	conn    net.Conn

	// Pre-allocated response buffer
	responseBuf []byte
}

var contextPool = sync.Pool{
	New: func() any {
		return &StandardContext{
			responseBuf: make([]byte, 0, 4096),
		}
	},
}

func AcquireContext(fd int, req *Request) Context {
	ctx := contextPool.Get().(*StandardContext)
	ctx.conn = nil // Legacy interface
	ctx.request = req
	ctx.paramCount = 0
	ctx.paramMapOverflow = nil
	return ctx
}

func AcquireContextForConn(conn net.Conn, req *Request) Context {
	ctx := contextPool.Get().(*StandardContext)
	ctx.conn = conn
	ctx.request = req
	ctx.paramCount = 0
	ctx.paramMapOverflow = nil
	return ctx
}

func ReleaseContext(ctx Context) {
	if stdCtx, ok := ctx.(*StandardContext); ok {
		stdCtx.request = nil
		stdCtx.conn = nil
		stdCtx.paramCount = 0
		if stdCtx.paramMapOverflow != nil {
			for k := range stdCtx.paramMapOverflow {
				delete(stdCtx.paramMapOverflow, k)
			}
		}
		contextPool.Put(stdCtx)
	}
}

// SetParam sets a path parameter (zero-allocation optimized)
func (c *StandardContext) SetParam(key, value string) {
	if c.paramCount < 4 {
		c.paramKeys[c.paramCount] = key
		c.paramValues[c.paramCount] = value
		c.paramCount++
	} else {
		if c.paramMapOverflow == nil {
			c.paramMapOverflow = make(map[string]string)
		}
		c.paramMapOverflow[key] = value
	}
}

// Param gets a path parameter
func (c *StandardContext) Param(key string) string {
	// Search fixed array first
	for i := 0; i < c.paramCount && i < 4; i++ {
		if c.paramKeys[i] == key {
			return c.paramValues[i]
		}
	}

	// Then search overflow map
	if c.paramMapOverflow != nil {
		return c.paramMapOverflow[key]
	}

	return ""
}

// Method returns the HTTP method
func (c *StandardContext) Method() string {
	return c.request.Method
}

// Path returns the request path
func (c *StandardContext) Path() string {
	return c.request.Path
}

// Conn returns the underlying connection
func (c *StandardContext) Conn() net.Conn {
	return c.conn
}

// Query gets a query parameter
func (c *StandardContext) Query(key string) string {
	if c.request.Query == nil {
		return ""
	}
	return c.request.Query[key]
}

// Header looks up a request header by name, case-insensitively.
func (c *StandardContext) Header(key string) string {
	return c.request.GetHeader(key)
}

// Body returns the request body
func (c *StandardContext) Body() []byte {
	return c.request.Body
}

// Bind binds JSON to a struct
func (c *StandardContext) Bind(v any) error {
	return json.Unmarshal(c.request.Body, v)
}

// String sends a text response
func (c *StandardContext) String(code int, s string) {
	c.responseBuf = c.responseBuf[:0]

	c.responseBuf = append(c.responseBuf, "HTTP/1.1 "...)
	c.responseBuf = appendInt(c.responseBuf, code)
	c.responseBuf = append(c.responseBuf, ' ')
	c.responseBuf = append(c.responseBuf, statusText(code)...)
	c.responseBuf = append(c.responseBuf, "\r\nContent-Type: text/plain\r\nContent-Length: "...)
	c.responseBuf = appendInt(c.responseBuf, len(s))
	c.responseBuf = append(c.responseBuf, "\r\n\r\n"...)
	c.responseBuf = append(c.responseBuf, s...)

	c.conn.Write(c.responseBuf)
}

// JSON sends a JSON response
func (c *StandardContext) JSON(code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.String(500, "JSON marshal error")
		return
	}

	c.responseBuf = c.responseBuf[:0]

	c.responseBuf = append(c.responseBuf, "HTTP/1.1 "...)
	c.responseBuf = appendInt(c.responseBuf, code)
	c.responseBuf = append(c.responseBuf, ' ')
	c.responseBuf = append(c.responseBuf, statusText(code)...)
	c.responseBuf = append(c.responseBuf, "\r\nContent-Type: application/json\r\nContent-Length: "...)
	c.responseBuf = appendInt(c.responseBuf, len(data))
	c.responseBuf = append(c.responseBuf, "\r\n\r\n"...)
	c.responseBuf = append(c.responseBuf, data...)

	c.conn.Write(c.responseBuf)
}

// Bytes sends a raw bytes response
func (c *StandardContext) Bytes(code int, data []byte) {
	c.responseBuf = c.responseBuf[:0]

	c.responseBuf = append(c.responseBuf, "HTTP/1.1 "...)
	c.responseBuf = appendInt(c.responseBuf, code)
	c.responseBuf = append(c.responseBuf, ' ')
	c.responseBuf = append(c.responseBuf, statusText(code)...)
	c.responseBuf = append(c.responseBuf, "\r\nContent-Type: application/octet-stream\r\nContent-Length: "...)
	c.responseBuf = appendInt(c.responseBuf, len(data))
	c.responseBuf = append(c.responseBuf, "\r\n\r\n"...)
	c.responseBuf = append(c.responseBuf, data...)

	c.conn.Write(c.responseBuf)
}

// Data sends raw data
func (c *StandardContext) Data(code int, contentType string, data []byte) {
	c.responseBuf = c.responseBuf[:0]

	c.responseBuf = append(c.responseBuf, "HTTP/1.1 "...)
	c.responseBuf = appendInt(c.responseBuf, code)
	c.responseBuf = append(c.responseBuf, ' ')
	c.responseBuf = append(c.responseBuf, statusText(code)...)
	c.responseBuf = append(c.responseBuf, "\r\nContent-Type: "...)
	c.responseBuf = append(c.responseBuf, contentType...)
	c.responseBuf = append(c.responseBuf, "\r\nContent-Length: "...)
	c.responseBuf = appendInt(c.responseBuf, len(data))
	c.responseBuf = append(c.responseBuf, "\r\n\r\n"...)
	c.responseBuf = append(c.responseBuf, data...)

	c.conn.Write(c.responseBuf)
}

// Error sends an error response
func (c *StandardContext) Error(code int, message string) {
	c.JSON(code, map[string]any{
		"code":    code,
		"message": message,
	})
}

// Success sends a success response
func (c *StandardContext) Success(data any) {
	c.JSON(200, map[string]any{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// ServeFile serves a file using zero-copy sendfile
func (c *StandardContext) ServeFile(filePath string) error {
	file, err := getFileInfo(filePath)
	if err != nil {
		c.String(404, "File not found")
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		c.String(500, "Internal server error")
		return err
	}

	// Get file size
	size := stat.Size()

	// Get content type
	contentType := getContentType(filePath)

	// Write response headers
	c.responseBuf = c.responseBuf[:0]
	c.responseBuf = append(c.responseBuf, "HTTP/1.1 200 OK\r\nContent-Type: "...)
	c.responseBuf = append(c.responseBuf, contentType...)
	c.responseBuf = append(c.responseBuf, "\r\nContent-Length: "...)
	c.responseBuf = appendInt(c.responseBuf, int(size))
	c.responseBuf = append(c.responseBuf, "\r\n\r\n"...)

	// Write headers first
	c.conn.Write(c.responseBuf)

	// Use sendfile for zero-copy file transfer
	// Get raw file descriptor from connection
	if tcpConn, ok := c.conn.(*net.TCPConn); ok {
		connFile, err := tcpConn.File()
		if err == nil {
			defer connFile.Close()
			connFd := int(connFile.Fd())
			fileFd := int(file.Fd())

			// Zero-copy sendfile
			offset := int64(0)
			_, err := sendfileImpl(connFd, fileFd, &offset, int(size))
			return err
		}
	}

	// Fallback: regular copy
	buffer := make([]byte, 32*1024)
	_, err = copyFileData(file, c.conn, buffer)
	return err
}

// Helper functions for ServeFile
func getFileInfo(path string) (*os.File, error) {
	return os.Open(path)
}

func getContentType(filename string) string {
	ext := filepath.Ext(filename)
	switch ext {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func sendfileImpl(outFd, inFd int, offset *int64, count int) (int, error) {
	return syscall.Sendfile(outFd, inFd, offset, count)
}

func copyFileData(src *os.File, dst net.Conn, buffer []byte) (int64, error) {
	return io.CopyBuffer(dst, src, buffer)
}

// appendInt appends an integer to a byte slice
func appendInt(b []byte, i int) []byte {
	if i == 0 {
		return append(b, '0')
	}

	if i < 0 {
		b = append(b, '-')
		i = -i
	}

	// Calculate number of digits
	digits := 0
	tmp := i
	for tmp > 0 {
		digits++
		tmp /= 10
	}

	// Pre-allocate space
	start := len(b)
	for j := 0; j < digits; j++ {
		b = append(b, '0')
	}

	// Fill digits from right to left
	for j := digits - 1; j >= 0; j-- {
		b[start+j] = byte('0' + i%10)
		i /= 10
	}

	return b
}

// statusText returns the HTTP status text for the given code
func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}
