package analyzer

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// Document abstracts an open PDF so the pipeline can run against fixtures
// without MuPDF. Page numbers are 1-based.
type Document interface {
	PageCount() int
	PageText(page int) (string, error)
	RenderPage(page int, dpi int) (image.Image, error)
	Close() error
}

// Opener opens a local PDF. The default is the fitz-backed implementation.
type Opener func(path string) (Document, error)

// OpenFitz opens a PDF with go-fitz.
func OpenFitz(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (f *fitzDocument) PageCount() int { return f.doc.NumPage() }

func (f *fitzDocument) PageText(page int) (string, error) {
	if page < 1 || page > f.doc.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", page, f.doc.NumPage())
	}
	text, err := f.doc.Text(page - 1)
	if err != nil {
		return "", fmt.Errorf("extract text from page %d: %w", page, err)
	}
	return text, nil
}

func (f *fitzDocument) RenderPage(page int, dpi int) (image.Image, error) {
	if page < 1 || page > f.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", page, f.doc.NumPage())
	}
	img, err := f.doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return img, nil
}

func (f *fitzDocument) Close() error { return f.doc.Close() }
