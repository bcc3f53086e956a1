package flow

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
)

// ResponseWriter extends http.ResponseWriter with additional methods to inspect the response.
// It also implements http.Flusher, http.Hijacker, and http.Pusher when the underlying
// ResponseWriter supports these interfaces.
//
// The protocol failure observer uses Written to guarantee a failed exchange
// is notified at most once: once anything has been written, WriteJSON and
// WriteRedirect become no-ops.
type ResponseWriter interface {
	http.ResponseWriter
	// Status returns the HTTP status code of the response.
	Status() int
	// Size returns the number of bytes written to the response.
	Size() int
	// Written returns whether the response has been written to.
	Written() bool
}

// responseWriter wraps http.ResponseWriter and tracks response status and size.
// It implements http.Flusher, http.Hijacker, and http.Pusher by delegating to
// the underlying ResponseWriter when supported.
type responseWriter struct {
	http.ResponseWriter
	status  int
	size    int
	written bool
}

// Compile-time interface checks
var (
	_ http.ResponseWriter = (*responseWriter)(nil)
	_ http.Flusher        = (*responseWriter)(nil)
	_ http.Hijacker       = (*responseWriter)(nil)
	_ http.Pusher         = (*responseWriter)(nil)
	_ ResponseWriter      = (*responseWriter)(nil)
)

// Status returns the HTTP status code of the response. If not yet written, it returns 200 OK.
func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// Size returns the number of bytes written to the response.
func (rw *responseWriter) Size() int {
	return rw.size
}

// Written returns whether the response has been written to.
func (rw *responseWriter) Written() bool {
	return rw.written
}

// WriteHeader sends an HTTP response header with the provided status code.
func (rw *responseWriter) WriteHeader(status int) {
	if rw.written {
		return
	}
	rw.status = status
	rw.written = true
	rw.ResponseWriter.WriteHeader(status)
}

// Write writes the data to the connection as part of an HTTP reply.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.written = true
		rw.status = http.StatusOK
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Unwrap returns the underlying http.ResponseWriter.
// This enables http.ResponseController to access the original ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Flush implements http.Flusher.
// Sends any buffered data to the client.
func (rw *responseWriter) Flush() {
	http.NewResponseController(rw.ResponseWriter).Flush()
}

// Hijack implements http.Hijacker.
// Allows the caller to take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

// Push implements http.Pusher.
// Initiates an HTTP/2 server push.
func (rw *responseWriter) Push(target string, opts *http.PushOptions) error {
	pusher, ok := rw.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

// WrapResponseWriter wraps an http.ResponseWriter with status, size and
// written-state tracking. A writer that already implements ResponseWriter is
// returned unchanged.
func WrapResponseWriter(w http.ResponseWriter) ResponseWriter {
	if rw, ok := w.(ResponseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w}
}

// WriteJSON writes body as a JSON response with the given status code. When
// w tracks written state and the response was already finalized, the call is
// a no-op returning nil.
func WriteJSON(w http.ResponseWriter, status int, body any) error {
	if rw, ok := w.(ResponseWriter); ok && rw.Written() {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// WriteRedirect writes a 302 redirect to url. When w tracks written state
// and the response was already finalized, the call is a no-op returning nil.
func WriteRedirect(w http.ResponseWriter, url string) error {
	if rw, ok := w.(ResponseWriter); ok && rw.Written() {
		return nil
	}
	w.Header().Set("Location", url)
	w.WriteHeader(http.StatusFound)
	return nil
}
