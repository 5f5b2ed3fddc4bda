package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/analyzer"
	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/llm"
	"github.com/local/docstream/internal/metrics"
	"github.com/local/docstream/internal/models"
)

// PageAnalyzer is the slice of the analyzer the pipeline drives.
// *analyzer.Analyzer satisfies it.
type PageAnalyzer interface {
	PageCount(ctx context.Context, ref string) (int, error)
	OpenDocument(path string) (analyzer.Document, error)
	RenderPage(doc analyzer.Document, page int, dir string, asJPG bool) (string, error)
	ExtractText(ctx context.Context, doc analyzer.Document, page int, pageImage string, d *models.Descriptor, clean bool) (*docmodel.ExtractedText, error)
	ExtractImages(ctx context.Context, page int, pageImage string, d *models.Descriptor) ([]*docmodel.ExtractedImage, error)
	ExtractTables(ctx context.Context, page int, pageImage string, d *models.Descriptor) ([]*docmodel.ExtractedTable, error)
}

// Gateway is the slice of the LLM gateway the post-processing phase uses.
// *llm.Gateway satisfies it.
type Gateway interface {
	Chat(ctx context.Context, d *models.Descriptor, prompt string, images ...string) (string, error)
	ChatStructuredRaw(ctx context.Context, d *models.Descriptor, prompt, schemaName string, schema json.RawMessage, images ...string) (json.RawMessage, error)
}

// ProgressReporter receives per-page progress for the status endpoint.
type ProgressReporter interface {
	Report(ctx context.Context, documentID string, processed, total int, message string)
}

// Pipeline runs one document through page-by-page extraction and
// post-processing, persisting a resume token after every page.
type Pipeline struct {
	cfg      *docmodel.PipelineConfiguration
	an       PageAnalyzer
	gw       Gateway
	progress ProgressReporter
}

// Option tweaks a Pipeline.
type Option func(*Pipeline)

// WithProgress attaches a progress reporter.
func WithProgress(pr ProgressReporter) Option { return func(p *Pipeline) { p.progress = pr } }

func New(cfg *docmodel.PipelineConfiguration, an PageAnalyzer, gw Gateway, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, an: an, gw: gw}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessPDF runs the whole pipeline and returns the document tree. Pages run
// in ascending order; within a page the stages run text, images, tables,
// custom steps, then combine. A stage failure aborts the run with a
// PageFailure and leaves the resume token at the last completed stage.
func (p *Pipeline) ProcessPDF(ctx context.Context) (*docmodel.DocumentContent, error) {
	outputDir := p.cfg.OutputDirectory
	if outputDir == "" {
		return nil, fmt.Errorf("output directory not configured")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	localPDF, err := p.stageSourcePDF(outputDir)
	if err != nil {
		return nil, err
	}

	total, err := p.an.PageCount(ctx, localPDF)
	if err != nil {
		return nil, err
	}

	meta := docmodel.NewPDFMetadata(p.cfg.PDFPath, localPDF, outputDir, total)
	doc := &docmodel.DocumentContent{Metadata: meta, Pages: make([]*docmodel.PageContent, 0, total)}

	var state *docmodel.PipelineState
	if p.cfg.ResumeProcessingIfInterrupted {
		state = docmodel.LoadPipelineState(outputDir)
	} else {
		state = docmodel.ResetPipelineState(outputDir)
	}

	pdf, err := p.an.OpenDocument(localPDF)
	if err != nil {
		return nil, err
	}
	defer pdf.Close()

	pagesDir := filepath.Join(outputDir, "pages")
	for n := 1; n <= total; n++ {
		page, err := p.processPage(ctx, pdf, pagesDir, n, state, outputDir)
		if err != nil {
			return nil, err
		}
		doc.Pages = append(doc.Pages, page)
		meta.ProcessedPages = n
		p.report(ctx, meta, fmt.Sprintf("page %d/%d processed", n, total))
	}

	doc.JoinFullText()

	if err := p.postProcess(ctx, doc, state); err != nil {
		return nil, err
	}

	if err := doc.SaveToJSON(filepath.Join(outputDir, docmodel.DocumentJSONFile)); err != nil {
		return nil, err
	}
	p.report(ctx, meta, "document complete")
	return doc, nil
}

// stageSourcePDF copies the source PDF into the output directory so the
// output folder is self-contained.
func (p *Pipeline) stageSourcePDF(outputDir string) (string, error) {
	src := p.cfg.PDFPath
	dest := filepath.Join(outputDir, filepath.Base(src))
	if src == dest {
		return dest, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read source pdf: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("copy source pdf: %w", err)
	}
	return dest, nil
}

func (p *Pipeline) processPage(ctx context.Context, pdf analyzer.Document, pagesDir string, n int, state *docmodel.PipelineState, outputDir string) (*docmodel.PageContent, error) {
	pageDir := filepath.Join(pagesDir, fmt.Sprintf("page_%d", n))

	// Anything a previous run persisted is picked up from disk.
	page, err := docmodel.LoadPageContent(pagesDir, n)
	if err != nil {
		return nil, &PageFailure{Page: n, Stage: "load", Err: err}
	}
	page.CustomPageProcessingSteps = docmodel.OrderStepUnits(
		page.CustomPageProcessingSteps, "page_step_", stepNames(p.cfg.CustomPageProcessingSteps))

	if page.PageImagePath == "" {
		img, err := p.an.RenderPage(pdf, n, pageDir, p.cfg.ProcessPagesAsJPG)
		if err != nil {
			return nil, &PageFailure{Page: n, Stage: "render", Err: err}
		}
		page.PageImagePath = img
	}

	runStage := func(stage string, run func() error) error {
		if state.Done(stage, n) {
			metrics.IncPageStage(stage, "resumed")
			return nil
		}
		// Leftovers from an interrupted attempt must not mix with the rerun's
		// output, or a resumed document would differ from an uninterrupted one.
		if err := clearStageOutputs(pageDir, stage, n); err != nil {
			return &PageFailure{Page: n, Stage: stage, Err: err}
		}
		if err := run(); err != nil {
			metrics.IncPageStage(stage, "failed")
			return &PageFailure{Page: n, Stage: stage, Err: err}
		}
		state.MarkDone(stage, n)
		if err := state.Save(outputDir); err != nil {
			return &PageFailure{Page: n, Stage: stage, Err: err}
		}
		metrics.IncPageStage(stage, "ok")
		return nil
	}

	if err := runStage(docmodel.StageText, func() error {
		text, err := p.an.ExtractText(ctx, pdf, n, page.PageImagePath, p.cfg.MultimodalModel, p.cfg.ProcessText)
		if err != nil {
			return err
		}
		page.Text = text
		return text.Save(pageDir)
	}); err != nil {
		return nil, err
	}

	if p.cfg.ProcessImages {
		if err := runStage(docmodel.StageImages, func() error {
			images, err := p.an.ExtractImages(ctx, n, page.PageImagePath, p.cfg.MultimodalModel)
			if err != nil {
				return err
			}
			page.Images = images
			for i, img := range images {
				if err := img.Save(filepath.Join(pageDir, "images"), i); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.ProcessTables {
		if err := runStage(docmodel.StageTables, func() error {
			tables, err := p.an.ExtractTables(ctx, n, page.PageImagePath, p.cfg.MultimodalModel)
			if err != nil {
				return err
			}
			page.Tables = tables
			for i, tbl := range tables {
				if err := tbl.Save(filepath.Join(pageDir, "tables"), i); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if len(p.cfg.CustomPageProcessingSteps) > 0 {
		if err := runStage(docmodel.StageCustomPage, func() error {
			pageText := ""
			if page.Text != nil && page.Text.Text != nil {
				pageText = page.Text.Text.Text
			}
			page.CustomPageProcessingSteps = page.CustomPageProcessingSteps[:0]
			for _, step := range p.cfg.CustomPageProcessingSteps {
				unit, err := p.runCustomStep(ctx, step, pageText, page.PageImagePath,
					filepath.Join(pageDir, "custom_processing"), "page_step_")
				if err != nil {
					return fmt.Errorf("step %s: %w", step.Name, err)
				}
				page.CustomPageProcessingSteps = append(page.CustomPageProcessingSteps, unit)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	combined := docmodel.NewDataUnit(page.CombineContent())
	combined.PageImagePath = page.PageImagePath
	page.PageText = combined
	if err := combined.SaveToFile(pageDir, fmt.Sprintf("page_%d_twin.txt", n)); err != nil {
		return nil, &PageFailure{Page: n, Stage: "combine", Err: err}
	}

	log.Info().Int("page", n).Int("images", len(page.Images)).Int("tables", len(page.Tables)).Msg("page processed")
	return page, nil
}

// clearStageOutputs removes whatever a stage wrote on a previous unfinished
// attempt.
func clearStageOutputs(pageDir, stage string, n int) error {
	switch stage {
	case docmodel.StageText:
		err := os.Remove(filepath.Join(pageDir, fmt.Sprintf("page_%d.txt", n)))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case docmodel.StageImages:
		return os.RemoveAll(filepath.Join(pageDir, "images"))
	case docmodel.StageTables:
		return os.RemoveAll(filepath.Join(pageDir, "tables"))
	case docmodel.StageCustomPage:
		return os.RemoveAll(filepath.Join(pageDir, "custom_processing"))
	}
	return nil
}

func stepNames(steps []docmodel.CustomProcessingStep) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

// runCustomStep executes one user-declared step and writes its artifact.
// Steps with a schema run structured and serialize compact JSON; text-family
// descriptors get no images.
func (p *Pipeline) runCustomStep(ctx context.Context, step docmodel.CustomProcessingStep, inputText, pageImage, dir, filePrefix string) (*docmodel.DataUnit, error) {
	d := step.Model
	if d == nil {
		d = p.cfg.MultimodalModel
	}
	var images []string
	if pageImage != "" && d.Family == models.FamilyMultimodal {
		images = append(images, pageImage)
	}
	prompt := llm.BuildCustomStepPrompt(step.Prompt, inputText)

	var content, ext string
	if len(step.DataModel) > 0 {
		raw, err := p.gw.ChatStructuredRaw(ctx, d, prompt, step.Name, step.DataModel, images...)
		if err != nil {
			return nil, err
		}
		compact, err := compactJSON(raw)
		if err != nil {
			return nil, err
		}
		content, ext = compact, ".json"
	} else {
		out, err := p.gw.Chat(ctx, d, prompt, images...)
		if err != nil {
			return nil, err
		}
		content, ext = out, ".txt"
	}

	unit := docmodel.NewDataUnit(content)
	unit.PageImagePath = pageImage
	if err := unit.SaveToFile(dir, filePrefix+step.Name+ext); err != nil {
		return nil, err
	}
	return unit, nil
}

func (p *Pipeline) report(ctx context.Context, meta *docmodel.PDFMetadata, message string) {
	if p.progress == nil {
		return
	}
	p.progress.Report(ctx, meta.DocumentID, meta.ProcessedPages, meta.TotalPages, message)
}
