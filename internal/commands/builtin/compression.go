// File: internal/commands/builtin/compression.go
package builtin

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var brotliReaderPool = sync.Pool{
	New: func() interface{} {
		return brotli.NewReader(nil)
	},
}

// decompressingTransport advertises br/gzip/deflate and transparently decodes
// the response body, so fetched pages reach the HTML parser as plain bytes.
type decompressingTransport struct {
	base http.RoundTripper
}

func newDecompressingTransport(base http.RoundTripper) *decompressingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &decompressingTransport{base: base}
}

func (t *decompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

type layeredBody struct {
	io.Reader
	closers []func() error
}

func (b *layeredBody) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// decodeBody unwraps every Content-Encoding layer, last applied first.
func decodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	original := resp.Body
	body := &layeredBody{Reader: original, closers: []func() error{original.Close}}

	var layers []string
	for _, v := range encodings {
		for _, part := range strings.Split(v, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(part)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		switch layers[i] {
		case "gzip", "x-gzip":
			zr, err := gzip.NewReader(body.Reader)
			if err != nil {
				return fmt.Errorf("gzip: %w", err)
			}
			body.Reader = zr
			body.closers = append(body.closers, zr.Close)
		case "deflate":
			r, closeFn := openDeflate(body.Reader)
			body.Reader = r
			body.closers = append(body.closers, closeFn)
		case "br":
			br := brotliReaderPool.Get().(*brotli.Reader)
			if err := br.Reset(body.Reader); err != nil {
				brotliReaderPool.Put(br)
				return fmt.Errorf("brotli: %w", err)
			}
			body.Reader = br
			body.closers = append(body.closers, func() error {
				_ = br.Reset(strings.NewReader(""))
				brotliReaderPool.Put(br)
				return nil
			})
		case "identity", "":
		default:
			return fmt.Errorf("unsupported Content-Encoding %q", layers[i])
		}
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// openDeflate accepts both zlib-wrapped and raw deflate streams; servers send both.
func openDeflate(r io.Reader) (io.Reader, func() error) {
	buffered := bufio.NewReader(r)
	if header, err := buffered.Peek(2); err == nil && isZlibHeader(header) {
		if zr, err := zlib.NewReader(buffered); err == nil {
			return zr, zr.Close
		}
	}
	fr := flate.NewReader(buffered)
	return fr, fr.Close
}

func isZlibHeader(h []byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
