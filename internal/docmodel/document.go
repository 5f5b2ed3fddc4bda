package docmodel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// DocumentContent is the root of the tree: metadata, every processed page and
// the post-processing artifacts. FullText is the ordered newline-join of the
// per-page combined texts.
type DocumentContent struct {
	Metadata              *PDFMetadata           `json:"metadata"`
	Pages                 []*PageContent         `json:"pages"`
	FullText              string                 `json:"full_text,omitempty"`
	PostProcessingContent *PostProcessingContent `json:"post_processing_content,omitempty"`
}

// JoinFullText recomputes FullText from the pages in order.
func (d *DocumentContent) JoinFullText() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if p.PageText != nil {
			parts = append(parts, p.PageText.Text)
		}
	}
	d.FullText = strings.Join(parts, "\n")
	return d.FullText
}

// SaveToDirectory writes the whole tree plus document_content.json into the
// output directory.
func (d *DocumentContent) SaveToDirectory(outputDir string) error {
	pagesDir := filepath.Join(outputDir, "pages")
	for _, p := range d.Pages {
		if err := p.SaveToDirectory(pagesDir); err != nil {
			return err
		}
	}
	if d.PostProcessingContent != nil {
		if err := d.PostProcessingContent.SaveToDirectory(outputDir); err != nil {
			return err
		}
	}
	return d.SaveToJSON(filepath.Join(outputDir, DocumentJSONFile))
}

// SaveToJSON serializes the tree to one JSON file.
func (d *DocumentContent) SaveToJSON(path string) error {
	return SaveJSON(path, d)
}

// LoadDocumentContentJSON restores a tree from document_content.json.
func LoadDocumentContentJSON(path string) (*DocumentContent, error) {
	d := &DocumentContent{}
	if err := LoadJSON(path, d); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDocumentContent rebuilds the tree from an output directory. When
// document_content.json exists it is authoritative; otherwise the tree is
// reassembled from the per-page files, which needs the page count.
func LoadDocumentContent(outputDir string, totalPages int) (*DocumentContent, error) {
	jsonPath := filepath.Join(outputDir, DocumentJSONFile)
	if fileExists(jsonPath) {
		return LoadDocumentContentJSON(jsonPath)
	}
	d := &DocumentContent{Pages: make([]*PageContent, 0, totalPages)}
	pagesDir := filepath.Join(outputDir, "pages")
	for n := 1; n <= totalPages; n++ {
		p, err := LoadPageContent(pagesDir, n)
		if err != nil {
			return nil, err
		}
		d.Pages = append(d.Pages, p)
	}
	pp, err := LoadPostProcessingContent(outputDir)
	if err != nil {
		return nil, err
	}
	d.PostProcessingContent = pp
	d.JoinFullText()
	return d, nil
}

// UploadToBlob mirrors the document to the store: the source PDF and the
// post-processing artifacts at the prefix root, pages under pages/page_{N},
// and document_content.json last so it captures every cloud path, including
// its own recorded in PostProcessingContent.DocumentJSON.
func (d *DocumentContent) UploadToBlob(ctx context.Context, store BlobStore, container, prefix string) error {
	if d.Metadata != nil && d.Metadata.DocumentPath != "" {
		uri, err := store.UploadBlob(ctx, container, joinBlob(prefix, filepath.Base(d.Metadata.DocumentPath)), d.Metadata.DocumentPath)
		if err != nil {
			return err
		}
		d.Metadata.CloudStoragePath = uri
	}
	for _, p := range d.Pages {
		if err := p.UploadToBlob(ctx, store, container, prefix); err != nil {
			return err
		}
	}
	if d.PostProcessingContent != nil {
		if err := d.PostProcessingContent.UploadToBlob(ctx, store, container, prefix); err != nil {
			return err
		}
	}

	if d.Metadata == nil || d.Metadata.OutputDirectory == "" {
		return nil
	}
	jsonPath := filepath.Join(d.Metadata.OutputDirectory, DocumentJSONFile)
	if err := d.SaveToJSON(jsonPath); err != nil {
		return err
	}
	uri, err := store.UploadBlob(ctx, container, joinBlob(prefix, DocumentJSONFile), jsonPath)
	if err != nil {
		return err
	}
	// The file on disk predates its own upload, so only the in-memory tree
	// carries the JSON's cloud path.
	if d.PostProcessingContent == nil {
		d.PostProcessingContent = &PostProcessingContent{}
	}
	d.PostProcessingContent.DocumentJSON = &DataUnit{
		Language:                 "en",
		TextFilePath:             jsonPath,
		TextFileCloudStoragePath: uri,
	}
	return nil
}

// DownloadFromBlob mirrors a document prefix back to a local directory and
// loads the tree from the downloaded document_content.json.
func DownloadFromBlob(ctx context.Context, store BlobStore, container, prefix, localDir string) (*DocumentContent, error) {
	blobs, err := store.ListBlobs(ctx, container, prefix)
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, fmt.Errorf("no blobs under %s/%s", container, prefix)
	}
	for _, blob := range blobs {
		rel := strings.TrimPrefix(strings.TrimPrefix(blob, prefix), "/")
		if rel == "" {
			continue
		}
		dest := filepath.Join(localDir, filepath.FromSlash(rel))
		if err := store.DownloadBlob(ctx, container, blob, dest); err != nil {
			return nil, err
		}
	}
	return LoadDocumentContentJSON(filepath.Join(localDir, DocumentJSONFile))
}
