// Package ingest turns raw photo handles into data-URI backed items.
package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yangwenmai/storyteller/internal/model"
)

// DefaultMaxPhotoBytes bounds a single photo (25MB).
const DefaultMaxPhotoBytes = 25 << 20

var (
	// ErrTooLarge is returned when a photo exceeds the size limit.
	ErrTooLarge = errors.New("photo exceeds size limit")
	// ErrUnsupportedMedia is returned for content that is not an image.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrNoSources is returned when Ingest is called with nothing to ingest.
	ErrNoSources = errors.New("no photos to ingest")
)

// Source is a raw handle to one photo.
type Source interface {
	Name() string
	Size() int64
	ModTime() time.Time
	Open() (io.ReadCloser, error)
}

// ConversionError reports which photo of a batch failed to convert.
type ConversionError struct {
	Name string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %q: %v", e.Name, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Ingestor converts sources to items.
type Ingestor struct {
	maxBytes int64
	logger   *slog.Logger
	newID    func(Source) string
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithMaxPhotoBytes sets the per-photo size limit.
func WithMaxPhotoBytes(n int64) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an Ingestor.
func New(opts ...Option) *Ingestor {
	i := &Ingestor{
		maxBytes: DefaultMaxPhotoBytes,
		logger:   slog.Default(),
		newID:    NewItemID,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest converts every source concurrently and returns the items in input
// order. If any conversion fails no items are returned.
func (i *Ingestor) Ingest(ctx context.Context, sources []Source) ([]model.Item, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	items := make([]model.Item, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for idx, src := range sources {
		g.Go(func() error {
			item, err := i.convert(gctx, src)
			if err != nil {
				return &ConversionError{Name: src.Name(), Err: err}
			}
			items[idx] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	i.logger.Debug("ingested photos", "count", len(items))
	return items, nil
}

func (i *Ingestor) convert(ctx context.Context, src Source) (model.Item, error) {
	if err := ctx.Err(); err != nil {
		return model.Item{}, err
	}
	if src.Size() > i.maxBytes {
		return model.Item{}, fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, src.Size(), i.maxBytes)
	}

	rc, err := src.Open()
	if err != nil {
		return model.Item{}, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	// Read one byte past the limit so oversized streams with a lying Size are caught.
	data, err := io.ReadAll(io.LimitReader(rc, i.maxBytes+1))
	if err != nil {
		return model.Item{}, fmt.Errorf("read: %w", err)
	}
	if int64(len(data)) > i.maxBytes {
		return model.Item{}, ErrTooLarge
	}

	mimeType := detectMIME(src.Name(), data)
	if !strings.HasPrefix(mimeType, "image/") {
		return model.Item{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}

	preview := model.DataURI(mimeType, base64.StdEncoding.EncodeToString(data))
	return model.NewItem(i.newID(src), src.Name(), int64(len(data)), mimeType, preview), nil
}

// NewItemID derives an item ID from the source's identifying attributes plus
// a random suffix, so duplicate filenames still get distinct IDs.
func NewItemID(src Source) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%d-%s", src.Name(), src.Size(), src.ModTime().UnixMilli(), suffix)
}

func detectMIME(name string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
