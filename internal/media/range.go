// Package media serves large read-only files with byte-range support, so
// video playback can seek and retry without the server buffering whole
// assets in memory.
package media

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
)

const chunkSize = 8 * 1024

var rangeRe = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// parseRange handles the single-span form "bytes=<start>-[<end>]". end is
// clamped to size-1. ok is false for absent or malformed headers, and for
// spans that select nothing; callers fall back to a full-file response.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	m := rangeRe.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end = size - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	if end > size-1 {
		end = size - 1
	}
	if start > end {
		return 0, 0, false
	}
	return start, end, true
}

// ServeContent streams content honoring a Range header. With a valid range
// it answers 206 with Content-Range and exactly that byte span; otherwise
// (including malformed ranges, for client compatibility) the full file with
// 200. Bytes are copied in fixed-size chunks. An aborted connection just
// truncates the stream; nothing is committed per request.
func ServeContent(w http.ResponseWriter, r *http.Request, content io.ReadSeeker, size int64, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	start, end, ok := parseRange(r.Header.Get("Range"), size)
	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			copyChunks(w, content, size)
		}
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := content.Seek(start, io.SeekStart); err != nil {
		return
	}
	copyChunks(w, content, length)
}

func copyChunks(w io.Writer, src io.Reader, length int64) {
	buf := make([]byte, chunkSize)
	remaining := length
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := src.Read(buf[:n])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return
			}
			remaining -= int64(read)
		}
		if err != nil {
			return
		}
	}
}
