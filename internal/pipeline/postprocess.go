package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/llm"
)

// postProcess runs the document-level phase exactly once per document:
// full-text twin, condensed text, table of contents, custom document steps
// and translations. Individual step failures are logged and leave their
// artifact absent; they do not abort the run.
func (p *Pipeline) postProcess(ctx context.Context, doc *docmodel.DocumentContent, state *docmodel.PipelineState) error {
	outputDir := doc.Metadata.OutputDirectory

	if state.PostProcessingDone {
		pp, err := docmodel.LoadPostProcessingContent(outputDir)
		if err != nil {
			return err
		}
		pp.CustomDocumentProcessingSteps = docmodel.OrderStepUnits(
			pp.CustomDocumentProcessingSteps, "document_step_", stepNames(p.cfg.CustomDocumentProcessingSteps))
		doc.PostProcessingContent = pp
		log.Info().Str("document_id", doc.Metadata.DocumentID).Msg("post-processing already done; reloaded artifacts")
		return nil
	}

	pp := &docmodel.PostProcessingContent{}
	doc.PostProcessingContent = pp
	fullText := doc.FullText

	if p.cfg.SaveTextFiles {
		unit := docmodel.NewDataUnit(fullText)
		if err := unit.SaveToFile(outputDir, docmodel.FullTextFile); err != nil {
			return err
		}
		pp.FullText = unit
	}

	if p.cfg.GenerateCondensedText {
		out, err := p.gw.Chat(ctx, p.cfg.TextModel, llm.BuildCondensePrompt(fullText))
		if err != nil {
			p.logStepFailure(doc, "condensed_text", err)
		} else {
			unit := docmodel.NewDataUnit(out)
			if err := unit.SaveToFile(outputDir, docmodel.CondensedTextFile); err != nil {
				return err
			}
			pp.CondensedText = unit
		}
	}

	if p.cfg.GenerateTableOfContents {
		out, err := p.gw.Chat(ctx, p.cfg.TextModel, llm.BuildTOCPrompt(fullText))
		if err != nil {
			p.logStepFailure(doc, "table_of_contents", err)
		} else {
			unit := docmodel.NewDataUnit(stripMarkdownFence(out))
			if err := unit.SaveToFile(outputDir, docmodel.TableOfContentsFile); err != nil {
				return err
			}
			pp.TableOfContents = unit
		}
	}

	for _, step := range p.cfg.CustomDocumentProcessingSteps {
		unit, err := p.runCustomStep(ctx, step, fullText, "",
			filepath.Join(outputDir, docmodel.CustomProcessingDir), "document_step_")
		if err != nil {
			p.logStepFailure(doc, "document_step_"+step.Name, err)
			continue
		}
		pp.CustomDocumentProcessingSteps = append(pp.CustomDocumentProcessingSteps, unit)
	}

	for _, lang := range p.cfg.TranslateFullText {
		unit, err := p.translate(ctx, fullText, lang, "full_text_"+lang+".txt", outputDir)
		if err != nil {
			p.logStepFailure(doc, "translate_full_text_"+lang, err)
			continue
		}
		pp.TranslatedFullTexts = append(pp.TranslatedFullTexts, unit)
	}

	if len(p.cfg.TranslateCondensedText) > 0 && pp.CondensedText != nil {
		for _, lang := range p.cfg.TranslateCondensedText {
			unit, err := p.translate(ctx, pp.CondensedText.Text, lang, "condensed_text_"+lang+".txt", outputDir)
			if err != nil {
				p.logStepFailure(doc, "translate_condensed_text_"+lang, err)
				continue
			}
			pp.TranslatedCondensedTexts = append(pp.TranslatedCondensedTexts, unit)
		}
	}

	state.PostProcessingDone = true
	return state.Save(outputDir)
}

func (p *Pipeline) translate(ctx context.Context, text, lang, filename, outputDir string) (*docmodel.DataUnit, error) {
	out, err := p.gw.Chat(ctx, p.cfg.TextModel, llm.BuildTranslatePrompt(lang, text))
	if err != nil {
		return nil, err
	}
	unit := docmodel.NewDataUnit(out)
	unit.Language = lang
	if err := unit.SaveToFile(filepath.Join(outputDir, docmodel.TranslationsDir), filename); err != nil {
		return nil, err
	}
	return unit, nil
}

func (p *Pipeline) logStepFailure(doc *docmodel.DocumentContent, step string, err error) {
	log.Error().
		Err(err).
		Str("document_id", doc.Metadata.DocumentID).
		Str("step", step).
		Msg("post-processing step failed; artifact skipped")
}

// stripMarkdownFence unwraps a ```markdown code block if the model wrapped
// the whole answer in one.
func stripMarkdownFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```markdown")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func compactJSON(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
