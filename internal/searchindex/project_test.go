package searchindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docstream/internal/docmodel"
)

func sampleDocument() *docmodel.DocumentContent {
	return &docmodel.DocumentContent{
		Metadata: &docmodel.PDFMetadata{
			DocumentID: "report_abc",
			Filename:   "report.pdf",
			TotalPages: 2,
		},
		Pages: []*docmodel.PageContent{
			{
				PageNumber:                1,
				PageImagePath:             "pages/page_1/page_1.png",
				PageImageCloudStoragePath: "s3://bucket/out/pages/page_1/page_1.png",
				Text: &docmodel.ExtractedText{
					PageNumber: 1,
					Text:       &docmodel.DataUnit{Text: "First page prose.", TextFileCloudStoragePath: "s3://bucket/out/pages/page_1/page_1.txt"},
				},
				Images: []*docmodel.ExtractedImage{
					{PageNumber: 1, ImageType: "chart", Text: &docmodel.DataUnit{Text: "Revenue chart."}},
					{PageNumber: 1, ImageType: "photo", Text: &docmodel.DataUnit{Text: ""}},
				},
			},
			{
				PageNumber: 2,
				Text:       &docmodel.ExtractedText{PageNumber: 2, Text: &docmodel.DataUnit{Text: ""}},
				Tables: []*docmodel.ExtractedTable{
					{PageNumber: 2, Text: &docmodel.DataUnit{Text: "| q | revenue |"}, Summary: "Quarterly revenue."},
				},
			},
		},
		PostProcessingContent: &docmodel.PostProcessingContent{
			CondensedText:   &docmodel.DataUnit{Text: "Condensed."},
			TableOfContents: &docmodel.DataUnit{Text: "- Intro"},
			FullText:        &docmodel.DataUnit{Text: "First page prose.\n"},
		},
	}
}

func TestDocumentToSearchUnitsOrdering(t *testing.T) {
	units := DocumentToSearchUnits(sampleDocument(), false)

	// Page 1 text then its non-empty image; page 2 has no text unit but
	// still contributes its table.
	require.Len(t, units, 3)
	assert.Equal(t, UnitTypeText, units[0].UnitType)
	assert.Equal(t, int64(1), units[0].PageNumber)
	assert.Equal(t, "First page prose.", units[0].Text)
	assert.Equal(t, "s3://bucket/out/pages/page_1/page_1.txt", units[0].TextFileCloudStoragePath)
	assert.Equal(t, "s3://bucket/out/pages/page_1/page_1.png", units[0].PageImageCloudStoragePath)

	assert.Equal(t, UnitTypeImage, units[1].UnitType)
	assert.Equal(t, "Revenue chart.", units[1].Text)

	assert.Equal(t, UnitTypeTable, units[2].UnitType)
	assert.Equal(t, int64(2), units[2].PageNumber)
}

func TestDocumentToSearchUnitsDeterministic(t *testing.T) {
	doc := sampleDocument()
	first := DocumentToSearchUnits(doc, true)
	second := DocumentToSearchUnits(doc, true)
	assert.Equal(t, first, second)
}

func TestDocumentToSearchUnitsPostProcessing(t *testing.T) {
	units := DocumentToSearchUnits(sampleDocument(), true)
	require.Len(t, units, 6)

	assert.Equal(t, int64(PageCondensedText), units[3].PageNumber)
	assert.Equal(t, "Condensed.", units[3].Text)
	assert.Equal(t, int64(PageTableOfContents), units[4].PageNumber)
	assert.Equal(t, int64(PageFullText), units[5].PageNumber)
	for _, u := range units[3:] {
		assert.Equal(t, UnitTypeText, u.UnitType)
	}
}

func TestDocumentToSearchUnitsFullTextFallback(t *testing.T) {
	// save_text_files off: no persisted full-text artifact, but the joined
	// document text still gets its synthetic unit.
	doc := sampleDocument()
	doc.PostProcessingContent.FullText = nil
	doc.FullText = "First page prose.\n"

	units := DocumentToSearchUnits(doc, true)
	require.Len(t, units, 6)
	last := units[len(units)-1]
	assert.Equal(t, int64(PageFullText), last.PageNumber)
	assert.Equal(t, doc.FullText, last.Text)
	assert.Empty(t, last.TextFileCloudStoragePath)
}

func TestDocumentToSearchUnitsEmptyDocument(t *testing.T) {
	doc := &docmodel.DocumentContent{Metadata: &docmodel.PDFMetadata{DocumentID: "empty"}}
	assert.Empty(t, DocumentToSearchUnits(doc, true))
}
