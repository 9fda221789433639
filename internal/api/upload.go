package api

import (
	"io"
	"mime/multipart"
	"time"

	"github.com/yangwenmai/storyteller/internal/ingest"
)

// uploadSource adapts a multipart file to ingest.Source.
type uploadSource struct {
	fh       *multipart.FileHeader
	received time.Time
}

func (u uploadSource) Name() string                 { return u.fh.Filename }
func (u uploadSource) Size() int64                  { return u.fh.Size }
func (u uploadSource) ModTime() time.Time           { return u.received }
func (u uploadSource) Open() (io.ReadCloser, error) { return u.fh.Open() }

func uploadSources(files []*multipart.FileHeader) []ingest.Source {
	now := time.Now()
	out := make([]ingest.Source, len(files))
	for i, fh := range files {
		out[i] = uploadSource{fh: fh, received: now}
	}
	return out
}
