package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docstream/internal/analyzer"
	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/models"
)

type fakePDF struct{ pages int }

func (f *fakePDF) PageCount() int               { return f.pages }
func (f *fakePDF) PageText(int) (string, error) { return "", nil }
func (f *fakePDF) RenderPage(int, int) (image.Image, error) {
	return nil, errors.New("not used")
}
func (f *fakePDF) Close() error { return nil }

// fakeAnalyzer drives the pipeline without MuPDF or an LLM backend. It
// counts extraction calls per stage so resume tests can assert which pages
// were actually re-processed.
type fakeAnalyzer struct {
	pages      int
	texts      map[int]string
	images     map[int][]*docmodel.ExtractedImage
	tables     map[int][]*docmodel.ExtractedTable
	textCalls  []int
	imageCalls []int
	tableCalls []int
	failText   map[int]error
}

func (f *fakeAnalyzer) PageCount(_ context.Context, _ string) (int, error) { return f.pages, nil }

func (f *fakeAnalyzer) OpenDocument(_ string) (analyzer.Document, error) {
	return &fakePDF{pages: f.pages}, nil
}

func (f *fakeAnalyzer) RenderPage(_ analyzer.Document, page int, dir string, asJPG bool) (string, error) {
	ext := ".png"
	if asJPG {
		ext = ".jpg"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%d%s", page, ext))
	if err := os.WriteFile(path, []byte("fake image"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeAnalyzer) ExtractText(_ context.Context, _ analyzer.Document, page int, _ string, _ *models.Descriptor, _ bool) (*docmodel.ExtractedText, error) {
	f.textCalls = append(f.textCalls, page)
	if err := f.failText[page]; err != nil {
		return nil, err
	}
	return &docmodel.ExtractedText{PageNumber: page, Text: docmodel.NewDataUnit(f.texts[page])}, nil
}

func (f *fakeAnalyzer) ExtractImages(_ context.Context, page int, _ string, _ *models.Descriptor) ([]*docmodel.ExtractedImage, error) {
	f.imageCalls = append(f.imageCalls, page)
	return f.images[page], nil
}

func (f *fakeAnalyzer) ExtractTables(_ context.Context, page int, _ string, _ *models.Descriptor) ([]*docmodel.ExtractedTable, error) {
	f.tableCalls = append(f.tableCalls, page)
	return f.tables[page], nil
}

// fakeGateway answers post-processing and custom-step calls by matching the
// prompt against the builder templates.
type fakeGateway struct {
	chatErr map[string]error // keyed by matched kind
}

func (f *fakeGateway) kindOf(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "Condense the following document"):
		return "condense"
	case strings.HasPrefix(prompt, "Read the following document and produce a detailed table of contents"):
		return "toc"
	case strings.HasPrefix(prompt, "Translate the following text into"):
		return "translate"
	default:
		return "custom"
	}
}

func (f *fakeGateway) Chat(_ context.Context, _ *models.Descriptor, prompt string, _ ...string) (string, error) {
	kind := f.kindOf(prompt)
	if err := f.chatErr[kind]; err != nil {
		return "", err
	}
	switch kind {
	case "condense":
		return "condensed version", nil
	case "toc":
		return "```markdown\n- Intro (page 1)\n```", nil
	case "translate":
		rest := strings.TrimPrefix(prompt, "Translate the following text into ")
		lang := rest[:strings.IndexByte(rest, '.')]
		return "translated to " + lang, nil
	default:
		return "custom answer", nil
	}
}

func (f *fakeGateway) ChatStructuredRaw(_ context.Context, _ *models.Descriptor, _, _ string, _ json.RawMessage, _ ...string) (json.RawMessage, error) {
	return json.RawMessage(`{ "entities" : ["Acme Corp"] }`), nil
}

func writePDFFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fixture"), 0o644))
	return path
}

func testConfig(t *testing.T, root string) *docmodel.PipelineConfiguration {
	t.Helper()
	cfg := docmodel.DefaultPipelineConfiguration(writePDFFixture(t, root))
	cfg.OutputDirectory = filepath.Join(root, "out")
	cfg.MultimodalModel = models.NewMultimodal(models.ProviderOpenAI, "gpt-4o")
	cfg.TextModel = models.NewText(models.ProviderOpenAI, "gpt-4o-mini")
	cfg.ProcessText = false // keep page text raw so the fake analyzer output passes through
	return cfg
}

func twoPageAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		pages: 2,
		texts: map[int]string{1: "First page body.", 2: "Second page body."},
		images: map[int][]*docmodel.ExtractedImage{
			1: {{PageNumber: 1, ImageType: "chart", Text: docmodel.NewDataUnit("Revenue chart.")}},
		},
		tables: map[int][]*docmodel.ExtractedTable{
			2: {{PageNumber: 2, Text: docmodel.NewDataUnit("| a | b |"), Summary: "Totals table."}},
		},
		failText: map[int]error{},
	}
}

func TestProcessPDFDefaults(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	an := twoPageAnalyzer()
	p := New(cfg, an, &fakeGateway{})

	doc, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, 2, doc.Metadata.TotalPages)
	assert.Equal(t, 2, doc.Metadata.ProcessedPages)

	// Pages carry their stage outputs and the combined twin.
	assert.Equal(t, "First page body.", doc.Pages[0].Text.Text.Text)
	require.Len(t, doc.Pages[0].Images, 1)
	require.Len(t, doc.Pages[1].Tables, 1)
	assert.Contains(t, doc.Pages[0].PageText.Text, "##### --- Page 1 ---")
	assert.Contains(t, doc.Pages[0].PageText.Text, "Revenue chart.")

	// Full text is the page twins joined in order.
	assert.Contains(t, doc.FullText, "First page body.")
	assert.Contains(t, doc.FullText, "Second page body.")
	assert.Less(t, strings.Index(doc.FullText, "First page body."), strings.Index(doc.FullText, "Second page body."))

	// Post-processing artifacts with defaults on.
	require.NotNil(t, doc.PostProcessingContent)
	assert.Equal(t, doc.FullText, doc.PostProcessingContent.FullText.Text)
	assert.Equal(t, "condensed version", doc.PostProcessingContent.CondensedText.Text)
	assert.Equal(t, "- Intro (page 1)", doc.PostProcessingContent.TableOfContents.Text)

	// Filesystem layout.
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, "report.pdf"))
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, "pages", "page_1", "page_1.png"))
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, "pages", "page_2", "page_2_twin.txt"))
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.FullTextFile))
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.DocumentJSONFile))
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.StateFile))

	state := docmodel.LoadPipelineState(cfg.OutputDirectory)
	assert.Equal(t, []int{1, 2}, state.TextExtractedPages)
	assert.True(t, state.PostProcessingDone)
}

func TestProcessPDFResumeSkipsCompletedPages(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)

	an := twoPageAnalyzer()
	an.failText[2] = errors.New("rate limited")
	p := New(cfg, an, &fakeGateway{})

	_, err := p.ProcessPDF(context.Background())
	require.Error(t, err)
	var pf *PageFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, 2, pf.Page)
	assert.Equal(t, docmodel.StageText, pf.Stage)

	// Page 1 finished all stages before the crash.
	state := docmodel.LoadPipelineState(cfg.OutputDirectory)
	assert.Equal(t, []int{1}, state.TextExtractedPages)
	assert.Equal(t, []int{1}, state.ImagesExtractedPages)

	// Second run with a healthy analyzer: page 1 stages are not re-run.
	an2 := twoPageAnalyzer()
	p2 := New(cfg, an2, &fakeGateway{})
	doc, err := p2.ProcessPDF(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{2}, an2.textCalls)
	assert.Equal(t, []int{2}, an2.imageCalls)
	assert.Equal(t, []int{2}, an2.tableCalls)

	// Page 1 content came back from disk, not the analyzer.
	require.Len(t, doc.Pages, 2)
	assert.Equal(t, "First page body.", doc.Pages[0].Text.Text.Text)
	require.Len(t, doc.Pages[0].Images, 1)
	assert.Equal(t, "Second page body.", doc.Pages[1].Text.Text.Text)
}

func TestProcessPDFResumeDisabledReprocessesAll(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.ResumeProcessingIfInterrupted = false

	an := twoPageAnalyzer()
	p := New(cfg, an, &fakeGateway{})
	_, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)

	an2 := twoPageAnalyzer()
	p2 := New(cfg, an2, &fakeGateway{})
	_, err = p2.ProcessPDF(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, an2.textCalls)
}

func TestProcessPDFTranslations(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.TranslateFullText = []string{"fr", "de"}
	cfg.TranslateCondensedText = []string{"fr"}

	p := New(cfg, twoPageAnalyzer(), &fakeGateway{})
	doc, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)

	pp := doc.PostProcessingContent
	require.Len(t, pp.TranslatedFullTexts, 2)
	assert.Equal(t, "fr", pp.TranslatedFullTexts[0].Language)
	assert.Equal(t, "translated to fr", pp.TranslatedFullTexts[0].Text)
	assert.Equal(t, "de", pp.TranslatedFullTexts[1].Language)
	require.Len(t, pp.TranslatedCondensedTexts, 1)
	assert.Equal(t, "fr", pp.TranslatedCondensedTexts[0].Language)

	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.TranslationsDir, "full_text_fr.txt"))
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.TranslationsDir, "condensed_text_fr.txt"))
}

func TestProcessPDFCondensedFailureIsLocalized(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.TranslateCondensedText = []string{"fr"}

	gw := &fakeGateway{chatErr: map[string]error{"condense": errors.New("model down")}}
	p := New(cfg, twoPageAnalyzer(), gw)
	doc, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)

	pp := doc.PostProcessingContent
	assert.Nil(t, pp.CondensedText)
	assert.Empty(t, pp.TranslatedCondensedTexts)
	// The rest of post-processing still ran.
	assert.NotNil(t, pp.TableOfContents)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.CondensedTextFile))
}

func TestProcessPDFCustomSteps(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	schema := json.RawMessage(`{"type":"object","properties":{"entities":{"type":"array","items":{"type":"string"}}}}`)
	cfg.CustomPageProcessingSteps = []docmodel.CustomProcessingStep{
		{Name: "keywords", Prompt: "List the keywords."},
	}
	cfg.CustomDocumentProcessingSteps = []docmodel.CustomProcessingStep{
		{Name: "entities", Prompt: "Extract named entities.", DataModel: schema},
	}

	p := New(cfg, twoPageAnalyzer(), &fakeGateway{})
	doc, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)

	require.Len(t, doc.Pages[0].CustomPageProcessingSteps, 1)
	assert.Equal(t, "custom answer", doc.Pages[0].CustomPageProcessingSteps[0].Text)
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, "pages", "page_1", "custom_processing", "page_step_keywords.txt"))

	require.Len(t, doc.PostProcessingContent.CustomDocumentProcessingSteps, 1)
	// Structured steps serialize compact JSON.
	assert.Equal(t, `{"entities":["Acme Corp"]}`, doc.PostProcessingContent.CustomDocumentProcessingSteps[0].Text)
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.CustomProcessingDir, "document_step_entities.json"))
}

func TestProcessPDFRerunDiscardsStaleStageOutput(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)

	// A crashed attempt wrote an images file but never marked the stage done.
	imagesDir := filepath.Join(cfg.OutputDirectory, "pages", "page_1", "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "page_1_chart_2.txt"), []byte("orphaned description"), 0o644))

	p := New(cfg, twoPageAnalyzer(), &fakeGateway{})
	doc, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)

	require.Len(t, doc.Pages[0].Images, 1)
	assert.Equal(t, "Revenue chart.", doc.Pages[0].Images[0].Text.Text)
	assert.NoFileExists(t, filepath.Join(imagesDir, "page_1_chart_2.txt"))

	// A resumed run sees exactly what the completed run produced.
	an2 := twoPageAnalyzer()
	p2 := New(cfg, an2, &fakeGateway{})
	doc2, err := p2.ProcessPDF(context.Background())
	require.NoError(t, err)
	assert.Empty(t, an2.imageCalls)
	require.Len(t, doc2.Pages[0].Images, 1)
	assert.Equal(t, "Revenue chart.", doc2.Pages[0].Images[0].Text.Text)
}

func TestProcessPDFResumeKeepsCustomStepOrder(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	// Declared order deliberately disagrees with the lexical file order.
	steps := []docmodel.CustomProcessingStep{
		{Name: "summary", Prompt: "Summarize the page."},
		{Name: "alerts", Prompt: "List anomalies."},
	}
	cfg.CustomPageProcessingSteps = steps
	cfg.CustomDocumentProcessingSteps = steps

	p := New(cfg, twoPageAnalyzer(), &fakeGateway{})
	doc, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)
	pageOrder := stepFileNames(doc.Pages[0].CustomPageProcessingSteps)
	assert.Equal(t, []string{"page_step_summary.txt", "page_step_alerts.txt"}, pageOrder)
	docOrder := stepFileNames(doc.PostProcessingContent.CustomDocumentProcessingSteps)
	assert.Equal(t, []string{"document_step_summary.txt", "document_step_alerts.txt"}, docOrder)

	p2 := New(cfg, twoPageAnalyzer(), &fakeGateway{})
	doc2, err := p2.ProcessPDF(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pageOrder, stepFileNames(doc2.Pages[0].CustomPageProcessingSteps))
	assert.Equal(t, docOrder, stepFileNames(doc2.PostProcessingContent.CustomDocumentProcessingSteps))
}

func stepFileNames(units []*docmodel.DataUnit) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = filepath.Base(u.TextFilePath)
	}
	return names
}

func TestProcessPDFZeroPages(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	an := &fakeAnalyzer{pages: 0, texts: map[int]string{}, failText: map[int]error{}}

	p := New(cfg, an, &fakeGateway{})
	doc, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Pages)
	assert.Equal(t, "", doc.FullText)
	assert.FileExists(t, filepath.Join(cfg.OutputDirectory, docmodel.DocumentJSONFile))
}

func TestProcessPDFReportsProgress(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)

	var messages []string
	reporter := progressFunc(func(_ context.Context, _ string, processed, total int, message string) {
		messages = append(messages, fmt.Sprintf("%d/%d %s", processed, total, message))
	})
	p := New(cfg, twoPageAnalyzer(), &fakeGateway{}, WithProgress(reporter))
	_, err := p.ProcessPDF(context.Background())
	require.NoError(t, err)

	require.Len(t, messages, 3)
	assert.Equal(t, "1/2 page 1/2 processed", messages[0])
	assert.Equal(t, "2/2 document complete", messages[2])
}

type progressFunc func(ctx context.Context, documentID string, processed, total int, message string)

func (f progressFunc) Report(ctx context.Context, documentID string, processed, total int, message string) {
	f(ctx, documentID, processed, total, message)
}
