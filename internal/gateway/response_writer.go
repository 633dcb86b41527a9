package gateway

import (
	"github.com/gin-gonic/gin"
)

// responseWriter counts the body bytes written through it. Status is left
// to gin's writer, which also reports aborted requests correctly.
type responseWriter struct {
	gin.ResponseWriter
	size int
}

func newResponseWriter(w gin.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) WriteString(s string) (int, error) {
	n, err := rw.ResponseWriter.WriteString(s)
	rw.size += n
	return n, err
}

// Size returns the body bytes written so far.
func (rw *responseWriter) Size() int {
	return rw.size
}
