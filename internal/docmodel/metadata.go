package docmodel

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeStemChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// PDFMetadata identifies one processed document.
type PDFMetadata struct {
	DocumentID      string `json:"document_id"`
	DocumentPath    string `json:"document_path"`
	Filename        string `json:"filename"`
	TotalPages      int    `json:"total_pages"`
	ProcessedPages  int    `json:"processed_pages"`
	OutputDirectory string `json:"output_directory"`

	CloudStoragePath string `json:"cloud_storage_path,omitempty"`
}

// NewPDFMetadata builds metadata for a document. sourcePath is the original
// location (local path or blob URL) and drives the deterministic document ID;
// localPath is where the PDF sits on disk for processing.
func NewPDFMetadata(sourcePath, localPath, outputDir string, totalPages int) *PDFMetadata {
	return &PDFMetadata{
		DocumentID:      DocumentID(sourcePath),
		DocumentPath:    localPath,
		Filename:        filepath.Base(localPath),
		TotalPages:      totalPages,
		OutputDirectory: outputDir,
	}
}

// DocumentID derives the deterministic identifier
// {sanitized_stem}_{uuidv5(DNS, sourcePath)} so re-ingesting the same source
// always maps to the same document.
func DocumentID(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = unsafeStemChars.ReplaceAllString(stem, "_")
	id := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(sourcePath))
	return stem + "_" + id.String()
}
