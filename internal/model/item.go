package model

import (
	"errors"
	"strings"
)

// Stage is the local processing stage of an ingested photo.
type Stage string

// Stage constants, in the only order an item may pass through them.
const (
	StageUploading Stage = "UPLOADING"
	StageAnalyzing Stage = "ANALYZING"
	StageComplete  Stage = "COMPLETE"
)

// Next returns the stage that follows s. COMPLETE is terminal.
func (s Stage) Next() Stage {
	switch s {
	case StageUploading:
		return StageAnalyzing
	case StageAnalyzing:
		return StageComplete
	default:
		return StageComplete
	}
}

// Item represents one photo of a batch being composed into a moment.
type Item struct {
	ID         string `json:"id"`
	SourceName string `json:"source_name"`
	SizeBytes  int64  `json:"size_bytes"`
	MIMEType   string `json:"mime_type"`
	Preview    string `json:"preview"` // data URI
	Stage      Stage  `json:"stage"`
	IsHeader   bool   `json:"is_header"`
}

// ImagePayload is a single image as sent to a generation service.
type ImagePayload struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64, no data-URI prefix
}

// ErrInvalidPreview is returned when a preview is not a base64 data URI.
var ErrInvalidPreview = errors.New("preview is not a base64 data URI")

// NewItem creates an Item in the UPLOADING stage.
func NewItem(id, sourceName string, size int64, mimeType, preview string) Item {
	return Item{
		ID:         id,
		SourceName: sourceName,
		SizeBytes:  size,
		MIMEType:   mimeType,
		Preview:    preview,
		Stage:      StageUploading,
	}
}

// Payload splits the item's data-URI preview into an ImagePayload.
// The MIME type embedded in the URI wins over Item.MIMEType.
func (it Item) Payload() (ImagePayload, error) {
	mime, data, err := ParseDataURI(it.Preview)
	if err != nil {
		return ImagePayload{}, err
	}
	if mime == "" {
		mime = it.MIMEType
	}
	return ImagePayload{MIMEType: mime, Data: data}, nil
}

// DataURI renders base64 data as a data URI.
func DataURI(mimeType, base64Data string) string {
	return "data:" + mimeType + ";base64," + base64Data
}

// ParseDataURI returns the MIME type and base64 payload of a data URI.
func ParseDataURI(uri string) (mimeType, data string, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", ErrInvalidPreview
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", ErrInvalidPreview
	}
	mimeType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", "", ErrInvalidPreview
	}
	return mimeType, data, nil
}
