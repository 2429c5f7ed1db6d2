package storage

import "io"

// BlobStore holds the instruction media files. Open returns a seeker plus
// the blob size so callers can serve byte ranges without buffering.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Open(key string) (io.ReadSeekCloser, int64, error)
	List(prefix string) ([]string, error)
}
