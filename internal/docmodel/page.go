package docmodel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PageContent gathers everything extracted from one page: the cleaned text,
// the described visuals, the reproduced tables, the combined page text and
// the outputs of per-page custom steps.
type PageContent struct {
	PageNumber int               `json:"page_number"`
	Text       *ExtractedText    `json:"text,omitempty"`
	Images     []*ExtractedImage `json:"images"`
	Tables     []*ExtractedTable `json:"tables"`

	PageImagePath             string `json:"page_image_path,omitempty"`
	PageImageCloudStoragePath string `json:"page_image_cloud_storage_path,omitempty"`

	PageText                  *DataUnit   `json:"page_text,omitempty"`
	CustomPageProcessingSteps []*DataUnit `json:"custom_page_processing_steps,omitempty"`
}

// DirName returns the per-page directory name under pages/.
func (p *PageContent) DirName() string {
	return fmt.Sprintf("page_%d", p.PageNumber)
}

func (p *PageContent) twinFileName() string {
	return fmt.Sprintf("page_%d_twin.txt", p.PageNumber)
}

// CombineContent renders the page as one markdown block: header, extracted
// text, enumerated image descriptions, enumerated tables with summaries, and
// a trailing img tag referencing the page image.
func (p *PageContent) CombineContent() string {
	var b strings.Builder
	fmt.Fprintf(&b, "##### --- Page %d ---\n\n", p.PageNumber)

	b.WriteString("# Extracted Text\n")
	if p.Text != nil && p.Text.Text != nil {
		b.WriteString(p.Text.Text.Text)
		b.WriteString("\n")
	}

	b.WriteString("\n# Embedded Images:\n")
	for i, img := range p.Images {
		if img.Text == nil || img.Text.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, img.Text.Text)
	}

	b.WriteString("\n# Tables:\n")
	for i, tbl := range p.Tables {
		if tbl.Text == nil || tbl.Text.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, tbl.Text.Text)
		if tbl.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", tbl.Summary)
		}
	}

	if p.PageImagePath != "" {
		fmt.Fprintf(&b, "\n<img src=\"%s\" width=\"300\" height=\"425\">\n", p.PageImagePath)
	}
	return b.String()
}

// SaveToDirectory writes the page tree under pagesDir/page_{N}.
func (p *PageContent) SaveToDirectory(pagesDir string) error {
	pageDir := filepath.Join(pagesDir, p.DirName())
	if err := os.MkdirAll(pageDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", pageDir, err)
	}
	if p.Text != nil {
		if err := p.Text.Save(pageDir); err != nil {
			return err
		}
	}
	for i, img := range p.Images {
		if err := img.Save(filepath.Join(pageDir, "images"), i); err != nil {
			return err
		}
	}
	for i, tbl := range p.Tables {
		if err := tbl.Save(filepath.Join(pageDir, "tables"), i); err != nil {
			return err
		}
	}
	if p.PageText != nil {
		if err := p.PageText.SaveToFile(pageDir, p.twinFileName()); err != nil {
			return err
		}
	}
	for _, step := range p.CustomPageProcessingSteps {
		name := ""
		if step.TextFilePath != "" {
			name = filepath.Base(step.TextFilePath)
		}
		if err := step.SaveToFile(filepath.Join(pageDir, "custom_processing"), name); err != nil {
			return err
		}
	}
	return nil
}

// LoadPageContent restores a page from pagesDir/page_{N}. Missing pieces load
// as empty; the caller decides whether that means the stage never ran.
func LoadPageContent(pagesDir string, pageNumber int) (*PageContent, error) {
	pageDir := filepath.Join(pagesDir, fmt.Sprintf("page_%d", pageNumber))
	p := &PageContent{PageNumber: pageNumber, Images: []*ExtractedImage{}, Tables: []*ExtractedTable{}}

	for _, ext := range []string{".png", ".jpg"} {
		candidate := filepath.Join(pageDir, fmt.Sprintf("page_%d%s", pageNumber, ext))
		if fileExists(candidate) {
			p.PageImagePath = candidate
			break
		}
	}

	text, err := LoadExtractedText(pageDir, pageNumber)
	if err != nil {
		return nil, err
	}
	p.Text = text

	imgFiles, err := listItemFiles(filepath.Join(pageDir, "images"), pageNumber)
	if err != nil {
		return nil, err
	}
	for _, f := range imgFiles {
		u, err := LoadDataUnit(f.path)
		if err != nil {
			return nil, err
		}
		p.Images = append(p.Images, &ExtractedImage{
			PageNumber: pageNumber,
			ImagePath:  p.PageImagePath,
			ImageType:  f.label,
			Text:       u,
		})
	}

	tblFiles, err := listItemFiles(filepath.Join(pageDir, "tables"), pageNumber)
	if err != nil {
		return nil, err
	}
	for _, f := range tblFiles {
		tbl, err := loadExtractedTable(f.path, pageNumber)
		if err != nil {
			return nil, err
		}
		p.Tables = append(p.Tables, tbl)
	}

	twinPath := filepath.Join(pageDir, p.twinFileName())
	if fileExists(twinPath) {
		u, err := LoadDataUnit(twinPath)
		if err != nil {
			return nil, err
		}
		u.PageImagePath = p.PageImagePath
		p.PageText = u
	}

	steps, err := loadUnitsDir(filepath.Join(pageDir, "custom_processing"))
	if err != nil {
		return nil, err
	}
	p.CustomPageProcessingSteps = steps

	return p, nil
}

// UploadToBlob mirrors the page tree under prefix/pages/page_{N} and stamps
// cloud paths on every nested unit.
func (p *PageContent) UploadToBlob(ctx context.Context, store BlobStore, container, prefix string) error {
	pagePrefix := joinBlob(prefix, "pages/"+p.DirName())

	if p.PageImagePath != "" {
		uri, err := store.UploadBlob(ctx, container, joinBlob(pagePrefix, filepath.Base(p.PageImagePath)), p.PageImagePath)
		if err != nil {
			return err
		}
		p.PageImageCloudStoragePath = uri
		stampPageImage(p, uri)
	}

	if p.Text != nil {
		if err := p.Text.uploadToBlob(ctx, store, container, pagePrefix); err != nil {
			return err
		}
	}
	for _, img := range p.Images {
		if err := img.uploadToBlob(ctx, store, container, joinBlob(pagePrefix, "images")); err != nil {
			return err
		}
	}
	for _, tbl := range p.Tables {
		if err := tbl.uploadToBlob(ctx, store, container, joinBlob(pagePrefix, "tables")); err != nil {
			return err
		}
	}
	if p.PageText != nil {
		if err := p.PageText.UploadToBlob(ctx, store, container, pagePrefix); err != nil {
			return err
		}
	}
	for _, step := range p.CustomPageProcessingSteps {
		if err := step.UploadToBlob(ctx, store, container, joinBlob(pagePrefix, "custom_processing")); err != nil {
			return err
		}
	}
	return nil
}

// stampPageImage copies the uploaded page image URI onto every unit that
// references the image, so units never re-upload it.
func stampPageImage(p *PageContent, uri string) {
	set := func(u *DataUnit) {
		if u != nil && u.PageImagePath == p.PageImagePath {
			u.PageImageCloudStoragePath = uri
		}
	}
	if p.Text != nil {
		set(p.Text.Text)
	}
	for _, img := range p.Images {
		set(img.Text)
	}
	for _, tbl := range p.Tables {
		set(tbl.Text)
	}
	set(p.PageText)
	for _, step := range p.CustomPageProcessingSteps {
		set(step)
	}
}

func loadUnitsDir(dir string) ([]*DataUnit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var units []*DataUnit
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		u, err := LoadDataUnit(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// OrderStepUnits reorders reloaded custom step outputs to the declared step
// order. Step files are named {prefix}{name}.{txt|json}, so the declaration
// order cannot be recovered from a directory listing alone. Units matching no
// declared name keep their relative order after the declared ones.
func OrderStepUnits(units []*DataUnit, prefix string, names []string) []*DataUnit {
	if len(units) < 2 {
		return units
	}
	ranks := make(map[string]int, len(names))
	for i, name := range names {
		ranks[name] = i
	}
	rank := func(u *DataUnit) int {
		base := filepath.Base(u.TextFilePath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if strings.HasPrefix(stem, prefix) {
			if r, ok := ranks[strings.TrimPrefix(stem, prefix)]; ok {
				return r
			}
		}
		return len(names)
	}
	ordered := make([]*DataUnit, len(units))
	copy(ordered, units)
	sort.SliceStable(ordered, func(i, j int) bool { return rank(ordered[i]) < rank(ordered[j]) })
	return ordered
}
