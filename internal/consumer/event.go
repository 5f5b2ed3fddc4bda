package consumer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// BlobCreatedEvent is the storage event envelope published when a pipeline
// configuration JSON lands in the upload container.
type BlobCreatedEvent struct {
	Topic           string        `json:"topic"`
	Subject         string        `json:"subject"`
	EventType       string        `json:"eventType"`
	ID              string        `json:"id"`
	EventTime       string        `json:"eventTime"`
	Data            BlobEventData `json:"data"`
	DataVersion     string        `json:"dataVersion"`
	MetadataVersion string        `json:"metadataVersion"`
}

// BlobEventData carries the created blob's location.
type BlobEventData struct {
	URL           string `json:"url"`
	API           string `json:"api,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
}

// ParseBlobCreatedEvent decodes one queue payload and validates that it
// points at a blob.
func ParseBlobCreatedEvent(payload []byte) (*BlobCreatedEvent, error) {
	var evt BlobCreatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	if evt.Data.URL == "" {
		return nil, fmt.Errorf("event %s has no blob url", evt.ID)
	}
	return &evt, nil
}

// BlobName returns the last path segment of the event's blob URL.
func (e *BlobCreatedEvent) BlobName() (string, error) {
	return blobNameOf(e.Data.URL)
}

// isBlobURL reports whether a configured pdf_path points at remote storage
// rather than the local filesystem.
func isBlobURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "s3://")
}

// blobNameOf extracts the last path segment of a blob URL.
func blobNameOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse blob url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("blob url %q has no blob name", rawURL)
	}
	return name, nil
}
