package docmodel

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
)

// DataUnit is the atomic text-bearing leaf of the document tree. It pairs a
// text body with an optional on-disk file, an optional cloud mirror of that
// file and an optional reference to the page image it was derived from.
type DataUnit struct {
	Text     string `json:"text"`
	Language string `json:"language"`

	TextFilePath             string `json:"text_file_path,omitempty"`
	TextFileCloudStoragePath string `json:"text_file_cloud_storage_path,omitempty"`

	PageImagePath             string `json:"page_image_path,omitempty"`
	PageImageCloudStoragePath string `json:"page_image_cloud_storage_path,omitempty"`
}

// NewDataUnit wraps text in a unit with the default language.
func NewDataUnit(text string) *DataUnit {
	return &DataUnit{Text: text, Language: "en"}
}

// SaveToFile writes the text to disk under dir and records the path. An empty
// filename derives one from a content hash, so identical text lands on the
// same file.
func (u *DataUnit) SaveToFile(dir, filename string) error {
	if filename == "" {
		filename = contentFilename(u.Text)
	}
	path := filepath.Join(dir, filename)
	if err := writeText(path, u.Text); err != nil {
		return err
	}
	u.TextFilePath = path
	return nil
}

// LoadDataUnit reads a unit back from a text file.
func LoadDataUnit(path string) (*DataUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	u := NewDataUnit(string(data))
	u.TextFilePath = path
	return u, nil
}

// UploadToBlob mirrors the unit's files to the store under prefix and fills
// the cloud paths. The page image is skipped when an owner already uploaded
// it and stamped the cloud path.
func (u *DataUnit) UploadToBlob(ctx context.Context, store BlobStore, container, prefix string) error {
	if u.TextFilePath != "" {
		uri, err := store.UploadBlob(ctx, container, joinBlob(prefix, filepath.Base(u.TextFilePath)), u.TextFilePath)
		if err != nil {
			return err
		}
		u.TextFileCloudStoragePath = uri
	}
	if u.PageImagePath != "" && u.PageImageCloudStoragePath == "" {
		uri, err := store.UploadBlob(ctx, container, joinBlob(prefix, filepath.Base(u.PageImagePath)), u.PageImagePath)
		if err != nil {
			return err
		}
		u.PageImageCloudStoragePath = uri
	}
	return nil
}

func contentFilename(text string) string {
	head := text
	if len(head) > 100 {
		head = head[:100]
	}
	sum := fmt.Sprintf("%x", md5.Sum([]byte(head)))
	return "content_" + sum[:8] + ".txt"
}
