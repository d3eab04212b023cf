package middleware

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality int
	// MinLength is the smallest body worth compressing. Shorter bodies go out
	// unencoded.
	MinLength int
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// brotliWriter holds the body back until it is known to reach MinLength.
type brotliWriter struct {
	gin.ResponseWriter
	cfg         BrotliConfig
	buf         bytes.Buffer
	br          *brotli.Writer
	passthrough bool
}

func (bw *brotliWriter) Write(p []byte) (int, error) {
	switch {
	case bw.passthrough:
		return bw.ResponseWriter.Write(p)
	case bw.br != nil:
		return bw.br.Write(p)
	}

	bw.buf.Write(p)
	if bw.buf.Len() < bw.cfg.MinLength {
		return len(p), nil
	}
	if !compressible(bw.Header().Get("Content-Type")) {
		bw.passthrough = true
		_, err := bw.ResponseWriter.Write(bw.buf.Bytes())
		bw.buf.Reset()
		return len(p), err
	}

	bw.Header().Set("Content-Encoding", "br")
	bw.Header().Del("Content-Length")
	bw.br = brotli.NewWriterLevel(bw.ResponseWriter, bw.cfg.Quality)
	_, err := bw.br.Write(bw.buf.Bytes())
	bw.buf.Reset()
	return len(p), err
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush commits to whatever mode the writer is in. A streaming handler that
// flushes before MinLength gets a plain body.
func (bw *brotliWriter) Flush() {
	if bw.br != nil {
		_ = bw.br.Flush()
	} else if !bw.passthrough {
		bw.passthrough = true
		_, _ = bw.ResponseWriter.Write(bw.buf.Bytes())
		bw.buf.Reset()
	}
	bw.ResponseWriter.Flush()
}

func (bw *brotliWriter) close() error {
	if bw.br != nil {
		return bw.br.Close()
	}
	if bw.buf.Len() > 0 {
		_, err := bw.ResponseWriter.Write(bw.buf.Bytes())
		bw.buf.Reset()
		return err
	}
	return nil
}

func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if shouldSkip(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{ResponseWriter: c.Writer, cfg: cfg}
		c.Writer = bw
		defer func() {
			if err := bw.close(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

// shouldSkip passes streams and upgrades through untouched.
func shouldSkip(c *gin.Context) bool {
	if c.Request.Method == http.MethodHead {
		return true
	}
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func compressible(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.HasPrefix(ct, "application/json") || strings.HasPrefix(ct, "text/")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ = strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(enc, "br") {
			return true
		}
	}
	return false
}
