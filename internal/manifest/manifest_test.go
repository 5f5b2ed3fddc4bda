package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docstream/internal/docmodel"
)

func TestDocumentToRecord(t *testing.T) {
	doc := &docmodel.DocumentContent{
		Metadata: &docmodel.PDFMetadata{
			DocumentID: "report_123",
			Filename:   "report.pdf",
			TotalPages: 2,
		},
		Pages: []*docmodel.PageContent{
			{PageNumber: 1, Text: &docmodel.ExtractedText{PageNumber: 1, Text: docmodel.NewDataUnit("hello")}},
		},
		FullText: "hello",
	}

	record, err := documentToRecord(doc)
	require.NoError(t, err)

	assert.Equal(t, "report_123", record["_id"])
	assert.Equal(t, "documents", record["categoryId"])

	meta, ok := record["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "report.pdf", meta["filename"])
	assert.Equal(t, float64(2), meta["total_pages"])

	pages, ok := record["pages"].([]any)
	require.True(t, ok)
	assert.Len(t, pages, 1)
	assert.Equal(t, "hello", record["full_text"])
}

func TestDocumentToRecordStableKey(t *testing.T) {
	doc := &docmodel.DocumentContent{Metadata: &docmodel.PDFMetadata{DocumentID: "same_id"}}
	a, err := documentToRecord(doc)
	require.NoError(t, err)
	b, err := documentToRecord(doc)
	require.NoError(t, err)
	assert.Equal(t, a["_id"], b["_id"])
}
