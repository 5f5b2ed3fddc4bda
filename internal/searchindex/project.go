package searchindex

import "github.com/local/docstream/internal/docmodel"

// DocumentToSearchUnits flattens a document tree into indexable units. The
// output is deterministic: pages in order, and within a page text, then
// images, then tables. Empty texts contribute nothing. When
// includePostProcessing is set, document-level artifacts are emitted as
// synthetic pages with reserved negative numbers.
func DocumentToSearchUnits(doc *docmodel.DocumentContent, includePostProcessing bool) []SearchUnit {
	var units []SearchUnit

	for _, page := range doc.Pages {
		if page.Text != nil && page.Text.Text != nil && page.Text.Text.Text != "" {
			units = append(units, unitFrom(doc, page, UnitTypeText, page.Text.Text))
		}
		for _, img := range page.Images {
			if img.Text != nil && img.Text.Text != "" {
				units = append(units, unitFrom(doc, page, UnitTypeImage, img.Text))
			}
		}
		for _, tbl := range page.Tables {
			if tbl.Text != nil && tbl.Text.Text != "" {
				units = append(units, unitFrom(doc, page, UnitTypeTable, tbl.Text))
			}
		}
	}

	if includePostProcessing {
		if pp := doc.PostProcessingContent; pp != nil {
			if pp.CondensedText != nil && pp.CondensedText.Text != "" {
				units = append(units, syntheticUnit(doc, PageCondensedText, pp.CondensedText))
			}
			if pp.TableOfContents != nil && pp.TableOfContents.Text != "" {
				units = append(units, syntheticUnit(doc, PageTableOfContents, pp.TableOfContents))
			}
		}
		if u := fullTextUnit(doc); u != nil {
			units = append(units, syntheticUnit(doc, PageFullText, u))
		}
	}

	return units
}

func unitFrom(doc *docmodel.DocumentContent, page *docmodel.PageContent, unitType string, u *docmodel.DataUnit) SearchUnit {
	return SearchUnit{
		Metadata:                  doc.Metadata,
		PageNumber:                int64(page.PageNumber),
		PageImagePath:             page.PageImagePath,
		UnitType:                  unitType,
		Text:                      u.Text,
		TextFileCloudStoragePath:  u.TextFileCloudStoragePath,
		PageImageCloudStoragePath: page.PageImageCloudStoragePath,
	}
}

// fullTextUnit prefers the persisted full-text artifact, which carries a
// cloud path, and falls back to the in-memory joined text when save_text_files
// was off.
func fullTextUnit(doc *docmodel.DocumentContent) *docmodel.DataUnit {
	if pp := doc.PostProcessingContent; pp != nil && pp.FullText != nil && pp.FullText.Text != "" {
		return pp.FullText
	}
	if doc.FullText == "" {
		return nil
	}
	return docmodel.NewDataUnit(doc.FullText)
}

func syntheticUnit(doc *docmodel.DocumentContent, page int, u *docmodel.DataUnit) SearchUnit {
	return SearchUnit{
		Metadata:                 doc.Metadata,
		PageNumber:               int64(page),
		UnitType:                 UnitTypeText,
		Text:                     u.Text,
		TextFileCloudStoragePath: u.TextFileCloudStoragePath,
	}
}
