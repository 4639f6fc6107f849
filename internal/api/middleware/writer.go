package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// statusWriter records the status code and body size of a response. It
// forwards Hijack and Flush so the live WebSocket endpoint can run behind the
// instrumentation middleware.
type statusWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
	hijacked    bool
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	n, err := sw.ResponseWriter.Write(b)
	sw.written += int64(n)
	return n, err
}

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		sw.hijacked = true
		sw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// started reports whether anything reached the client, in which case an
// error response can no longer be written.
func (sw *statusWriter) started() bool {
	return sw.wroteHeader || sw.hijacked
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
