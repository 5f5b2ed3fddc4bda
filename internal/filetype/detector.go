package filetype

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo holds the detected type of an input file.
type FileTypeInfo struct {
	MIMEType  string
	Extension string
	IsPDF     bool
}

// Detector identifies files by magic bytes rather than filename, so a
// renamed .docx cannot sneak into the PDF pipeline.
type Detector struct{}

func New() *Detector {
	return &Detector{}
}

// Detect returns the actual file type of the file at filePath.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("detect file type: %w", err)
	}

	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		IsPDF:     mtype.Is("application/pdf"),
	}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", filePath).Msg("detected file type")
	return info, nil
}

// ValidatePDF returns an error unless the file content is a PDF.
func (d *Detector) ValidatePDF(filePath string) error {
	info, err := d.Detect(filePath)
	if err != nil {
		return err
	}
	if !info.IsPDF {
		return fmt.Errorf("unsupported file type %s: only PDF input is accepted", info.MIMEType)
	}
	return nil
}
