package analyzer

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/llm"
	"github.com/local/docstream/internal/models"
)

// DefaultDPI is the rendering resolution for page images.
const DefaultDPI = 300

// Analyzer decomposes PDF pages: it renders page images and drives the LLM
// gateway to produce cleaned text, visual descriptions and table markdowns.
type Analyzer struct {
	gw          *llm.Gateway
	open        Opener
	dpi         int
	jpegQuality int
}

// Option tweaks an Analyzer.
type Option func(*Analyzer)

// WithOpener swaps the PDF opener, mainly for tests.
func WithOpener(open Opener) Option { return func(a *Analyzer) { a.open = open } }

// WithDPI overrides the rendering resolution.
func WithDPI(dpi int) Option { return func(a *Analyzer) { a.dpi = dpi } }

// WithJPEGQuality overrides the JPEG encoder quality.
func WithJPEGQuality(q int) Option { return func(a *Analyzer) { a.jpegQuality = q } }

func New(gw *llm.Gateway, opts ...Option) *Analyzer {
	a := &Analyzer{gw: gw, open: OpenFitz, dpi: DefaultDPI, jpegQuality: 90}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PageCount resolves how many pages a referenced PDF has without opening
// it for rendering.
func (a *Analyzer) PageCount(ctx context.Context, ref string) (int, error) {
	return PageCount(ctx, ref)
}

// OpenDocument opens a local PDF for page-by-page processing.
func (a *Analyzer) OpenDocument(path string) (Document, error) {
	return a.open(path)
}

// RenderPage rasterizes one page into dir as page_{N}.png (or .jpg) and
// returns the file path.
func (a *Analyzer) RenderPage(doc Document, page int, dir string, asJPG bool) (string, error) {
	img, err := doc.RenderPage(page, a.dpi)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	ext := ".png"
	if asJPG {
		ext = ".jpg"
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%d%s", page, ext))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if asJPG {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: a.jpegQuality})
	} else {
		err = png.Encode(f, img)
	}
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	log.Debug().Int("page", page).Int("dpi", a.dpi).Str("path", path).Msg("rendered page image")
	return path, nil
}

// ExtractText returns the page text. With clean=true the raw PDF text and the
// page image go through the multimodal model for cleanup; otherwise the raw
// text is stored as-is after the furniture pass.
func (a *Analyzer) ExtractText(ctx context.Context, doc Document, page int, pageImage string, d *models.Descriptor, clean bool) (*docmodel.ExtractedText, error) {
	raw, err := doc.PageText(page)
	if err != nil {
		return nil, err
	}
	text := cleanPageText(raw, page)

	if clean {
		text, err = a.gw.Chat(ctx, d, llm.BuildProcessTextPrompt(text), pageImage)
		if err != nil {
			return nil, fmt.Errorf("process page %d text: %w", page, err)
		}
	}

	unit := docmodel.NewDataUnit(text)
	unit.PageImagePath = pageImage
	return &docmodel.ExtractedText{PageNumber: page, Text: unit}, nil
}

// ExtractImages detects and describes the visuals embedded in a page image.
func (a *Analyzer) ExtractImages(ctx context.Context, page int, pageImage string, d *models.Descriptor) ([]*docmodel.ExtractedImage, error) {
	out, err := llm.ChatStructured[llm.VisualAnalysisList](ctx, a.gw, d, llm.ImageDescriptionPrompt(), pageImage)
	if err != nil {
		return nil, fmt.Errorf("describe page %d images: %w", page, err)
	}
	images := make([]*docmodel.ExtractedImage, 0, len(out.DetectedVisuals))
	for _, v := range out.DetectedVisuals {
		unit := docmodel.NewDataUnit(v.VisualDescription + "\n\n" + v.ContextualRelevance + "\n\n" + v.Analysis)
		unit.PageImagePath = pageImage
		images = append(images, &docmodel.ExtractedImage{
			PageNumber: page,
			ImagePath:  pageImage,
			ImageType:  v.VisualType,
			Text:       unit,
		})
	}
	return images, nil
}

// ExtractTables detects the tables in a page image and reproduces them as
// markdown. The summary repeats the contextual fields for search snippets.
func (a *Analyzer) ExtractTables(ctx context.Context, page int, pageImage string, d *models.Descriptor) ([]*docmodel.ExtractedTable, error) {
	out, err := llm.ChatStructured[llm.TableAnalysisList](ctx, a.gw, d, llm.TableDescriptionPrompt(), pageImage)
	if err != nil {
		return nil, fmt.Errorf("describe page %d tables: %w", page, err)
	}
	tables := make([]*docmodel.ExtractedTable, 0, len(out.DetectedTables))
	for _, t := range out.DetectedTables {
		unit := docmodel.NewDataUnit(t.Markdown + "\n\n" + t.ContextualRelevance + "\n\n" + t.Analysis)
		unit.PageImagePath = pageImage
		tables = append(tables, &docmodel.ExtractedTable{
			PageNumber: page,
			Text:       unit,
			Summary:    t.ContextualRelevance + "\n\n" + t.Analysis,
		})
	}
	return tables, nil
}
