package media

import (
	"bytes"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, rangeHeader string, size int) *httptest.ResponseRecorder {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	req := httptest.NewRequest("GET", "/stream/video/clip.mp4", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	ServeContent(w, req, bytes.NewReader(data), int64(size), "video/mp4")
	return w
}

func TestFullFileWithoutRange(t *testing.T) {
	w := serve(t, "", 1000)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q", got)
	}
	if w.Body.Len() != 1000 {
		t.Fatalf("body length = %d, want 1000", w.Body.Len())
	}
}

func TestPartialRange(t *testing.T) {
	w := serve(t, "bytes=0-99", 1000)
	if w.Code != 206 {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 0-99/1000" {
		t.Fatalf("Content-Range = %q", got)
	}
	if w.Body.Len() != 100 {
		t.Fatalf("body length = %d, want 100", w.Body.Len())
	}
}

func TestRangeEndClamped(t *testing.T) {
	w := serve(t, "bytes=900-2000", 1000)
	if w.Code != 206 {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 900-999/1000" {
		t.Fatalf("Content-Range = %q", got)
	}
	if w.Body.Len() != 100 {
		t.Fatalf("body length = %d, want 100", w.Body.Len())
	}
}

func TestOpenEndedRange(t *testing.T) {
	w := serve(t, "bytes=950-", 1000)
	if w.Code != 206 {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 950-999/1000" {
		t.Fatalf("Content-Range = %q", got)
	}
	if w.Body.Len() != 50 {
		t.Fatalf("body length = %d, want 50", w.Body.Len())
	}
}

func TestRangeBodyBytesMatchSpan(t *testing.T) {
	w := serve(t, "bytes=10-19", 1000)
	want := make([]byte, 10)
	for i := range want {
		want[i] = byte((10 + i) % 251)
	}
	if !bytes.Equal(w.Body.Bytes(), want) {
		t.Fatalf("body = %v, want %v", w.Body.Bytes(), want)
	}
}

func TestMalformedRangesFallBackToFullFile(t *testing.T) {
	for _, header := range []string{
		"bytes=abc", "bytes=-100", "bytes=100-50", "bytes=5000-6000", "chunks=0-10", "bytes=1-2,5-9",
	} {
		t.Run(header, func(t *testing.T) {
			w := serve(t, header, 1000)
			if w.Code != 200 {
				t.Fatalf("status = %d, want 200 fallback", w.Code)
			}
			if w.Body.Len() != 1000 {
				t.Fatalf("body length = %d, want full 1000", w.Body.Len())
			}
		})
	}
}

func TestParseRangeTable(t *testing.T) {
	cases := []struct {
		header     string
		size       int64
		start, end int64
		ok         bool
	}{
		{"bytes=0-0", 10, 0, 0, true},
		{"bytes=0-", 10, 0, 9, true},
		{"bytes=9-9", 10, 9, 9, true},
		{"bytes=10-", 10, 0, 0, false}, // start past the end selects nothing
		{"", 10, 0, 0, false},
	}
	for _, tc := range cases {
		start, end, ok := parseRange(tc.header, tc.size)
		if ok != tc.ok || (ok && (start != tc.start || end != tc.end)) {
			t.Errorf("parseRange(%q,%d) = (%d,%d,%v), want (%d,%d,%v)",
				tc.header, tc.size, start, end, ok, tc.start, tc.end, tc.ok)
		}
	}
}
