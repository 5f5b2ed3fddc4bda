package docmodel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Artifact file names at the root of the output directory.
const (
	FullTextFile        = "text_twin.md"
	CondensedTextFile   = "condensed_text.md"
	TableOfContentsFile = "table_of_contents.md"
	DocumentJSONFile    = "document_content.json"
	TranslationsDir     = "translations"
	CustomProcessingDir = "custom_processing"
)

// PostProcessingContent holds the document-level artifacts produced after the
// last page: condensed text, table of contents, the full text twin,
// translations and custom document step outputs. DocumentJSON points at the
// serialized document tree itself.
type PostProcessingContent struct {
	CondensedText   *DataUnit `json:"condensed_text,omitempty"`
	TableOfContents *DataUnit `json:"table_of_contents,omitempty"`
	FullText        *DataUnit `json:"full_text,omitempty"`

	TranslatedFullTexts      []*DataUnit `json:"translated_full_texts,omitempty"`
	TranslatedCondensedTexts []*DataUnit `json:"translated_condensed_texts,omitempty"`

	CustomDocumentProcessingSteps []*DataUnit `json:"custom_document_processing_steps,omitempty"`

	DocumentJSON *DataUnit `json:"document_json,omitempty"`
}

// SaveToDirectory writes the artifacts into the output directory root.
func (pp *PostProcessingContent) SaveToDirectory(outputDir string) error {
	if pp.FullText != nil {
		if err := pp.FullText.SaveToFile(outputDir, FullTextFile); err != nil {
			return err
		}
	}
	if pp.CondensedText != nil {
		if err := pp.CondensedText.SaveToFile(outputDir, CondensedTextFile); err != nil {
			return err
		}
	}
	if pp.TableOfContents != nil {
		if err := pp.TableOfContents.SaveToFile(outputDir, TableOfContentsFile); err != nil {
			return err
		}
	}
	for _, u := range pp.TranslatedFullTexts {
		if err := u.SaveToFile(filepath.Join(outputDir, TranslationsDir), "full_text_"+u.Language+".txt"); err != nil {
			return err
		}
	}
	for _, u := range pp.TranslatedCondensedTexts {
		if err := u.SaveToFile(filepath.Join(outputDir, TranslationsDir), "condensed_text_"+u.Language+".txt"); err != nil {
			return err
		}
	}
	for _, step := range pp.CustomDocumentProcessingSteps {
		name := ""
		if step.TextFilePath != "" {
			name = filepath.Base(step.TextFilePath)
		}
		if err := step.SaveToFile(filepath.Join(outputDir, CustomProcessingDir), name); err != nil {
			return err
		}
	}
	return nil
}

// LoadPostProcessingContent restores whatever artifacts exist in the output
// directory. Translation languages are recovered from the file names.
func LoadPostProcessingContent(outputDir string) (*PostProcessingContent, error) {
	pp := &PostProcessingContent{}

	load := func(name string) (*DataUnit, error) {
		path := filepath.Join(outputDir, name)
		if !fileExists(path) {
			return nil, nil
		}
		return LoadDataUnit(path)
	}

	var err error
	if pp.FullText, err = load(FullTextFile); err != nil {
		return nil, err
	}
	if pp.CondensedText, err = load(CondensedTextFile); err != nil {
		return nil, err
	}
	if pp.TableOfContents, err = load(TableOfContentsFile); err != nil {
		return nil, err
	}

	translations := filepath.Join(outputDir, TranslationsDir)
	if entries, err := os.ReadDir(translations); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			u, err := LoadDataUnit(filepath.Join(translations, entry.Name()))
			if err != nil {
				return nil, err
			}
			stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			switch {
			case strings.HasPrefix(stem, "full_text_"):
				u.Language = strings.TrimPrefix(stem, "full_text_")
				pp.TranslatedFullTexts = append(pp.TranslatedFullTexts, u)
			case strings.HasPrefix(stem, "condensed_text_"):
				u.Language = strings.TrimPrefix(stem, "condensed_text_")
				pp.TranslatedCondensedTexts = append(pp.TranslatedCondensedTexts, u)
			}
		}
	}

	steps, err := loadUnitsDir(filepath.Join(outputDir, CustomProcessingDir))
	if err != nil {
		return nil, err
	}
	pp.CustomDocumentProcessingSteps = steps

	return pp, nil
}

// UploadToBlob mirrors the artifacts to the container root prefix.
func (pp *PostProcessingContent) UploadToBlob(ctx context.Context, store BlobStore, container, prefix string) error {
	units := []*DataUnit{pp.FullText, pp.CondensedText, pp.TableOfContents}
	for _, u := range units {
		if u == nil {
			continue
		}
		if err := u.UploadToBlob(ctx, store, container, prefix); err != nil {
			return err
		}
	}
	for _, u := range pp.TranslatedFullTexts {
		if err := u.UploadToBlob(ctx, store, container, joinBlob(prefix, TranslationsDir)); err != nil {
			return err
		}
	}
	for _, u := range pp.TranslatedCondensedTexts {
		if err := u.UploadToBlob(ctx, store, container, joinBlob(prefix, TranslationsDir)); err != nil {
			return err
		}
	}
	for _, u := range pp.CustomDocumentProcessingSteps {
		if err := u.UploadToBlob(ctx, store, container, joinBlob(prefix, CustomProcessingDir)); err != nil {
			return err
		}
	}
	return nil
}
