package filetype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetectPDFByMagicBytes(t *testing.T) {
	// Named .txt on purpose: content wins over extension.
	path := writeFile(t, "report.txt", []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF"))

	info, err := New().Detect(path)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", info.MIMEType)
	assert.True(t, info.IsPDF)
}

func TestValidatePDFRejectsOtherTypes(t *testing.T) {
	d := New()

	pdf := writeFile(t, "ok.pdf", []byte("%PDF-1.4\n%%EOF"))
	assert.NoError(t, d.ValidatePDF(pdf))

	txt := writeFile(t, "notes.pdf", []byte("just some plain text"))
	err := d.ValidatePDF(txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only PDF input is accepted")
}
