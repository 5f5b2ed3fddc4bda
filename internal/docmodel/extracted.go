package docmodel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const summaryMarker = "\nSummary: "

// ExtractedText is the cleaned (or raw) text of one page.
type ExtractedText struct {
	PageNumber int       `json:"page_number"`
	Text       *DataUnit `json:"text,omitempty"`
}

func (e *ExtractedText) fileName() string {
	return fmt.Sprintf("page_%d.txt", e.PageNumber)
}

// Save writes the page text into the page directory.
func (e *ExtractedText) Save(pageDir string) error {
	if e.Text == nil {
		return nil
	}
	return e.Text.SaveToFile(pageDir, e.fileName())
}

// LoadExtractedText reads the page text back from the page directory. A
// missing file yields a nil unit, matching a page that produced no text.
func LoadExtractedText(pageDir string, pageNumber int) (*ExtractedText, error) {
	e := &ExtractedText{PageNumber: pageNumber}
	path := filepath.Join(pageDir, e.fileName())
	if !fileExists(path) {
		return e, nil
	}
	u, err := LoadDataUnit(path)
	if err != nil {
		return nil, err
	}
	e.Text = u
	return e, nil
}

// ExtractedImage is one embedded visual detected on a page. ImageType comes
// from the analyzer's closed label set and becomes part of the file name.
type ExtractedImage struct {
	PageNumber int       `json:"page_number"`
	ImagePath  string    `json:"image_path,omitempty"`
	ImageType  string    `json:"image_type"`
	Text       *DataUnit `json:"text,omitempty"`
}

func (e *ExtractedImage) fileName(index int) string {
	return fmt.Sprintf("page_%d_%s_%d.txt", e.PageNumber, e.ImageType, index+1)
}

// Save writes the image description into the images directory.
func (e *ExtractedImage) Save(imagesDir string, index int) error {
	if e.Text == nil {
		return nil
	}
	return e.Text.SaveToFile(imagesDir, e.fileName(index))
}

// ExtractedTable is one table detected on a page. Text carries the full
// markdown block; Summary repeats the contextual part for search snippets.
type ExtractedTable struct {
	PageNumber int       `json:"page_number"`
	Text       *DataUnit `json:"text,omitempty"`
	Summary    string    `json:"summary,omitempty"`
}

func (e *ExtractedTable) fileName(index int) string {
	return fmt.Sprintf("page_%d_table_%d.txt", e.PageNumber, index+1)
}

// Save writes the table to the tables directory, appending the summary block
// so the file is self-contained.
func (e *ExtractedTable) Save(tablesDir string, index int) error {
	if e.Text == nil {
		return nil
	}
	content := e.Text.Text
	if e.Summary != "" {
		content += summaryMarker + e.Summary
	}
	path := filepath.Join(tablesDir, e.fileName(index))
	if err := writeText(path, content); err != nil {
		return err
	}
	e.Text.TextFilePath = path
	return nil
}

// loadExtractedTable splits the trailing summary block back out of the file.
func loadExtractedTable(path string, pageNumber int) (*ExtractedTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)
	t := &ExtractedTable{PageNumber: pageNumber}
	if i := strings.LastIndex(content, summaryMarker); i >= 0 {
		t.Summary = content[i+len(summaryMarker):]
		content = content[:i]
	}
	t.Text = NewDataUnit(content)
	t.Text.TextFilePath = path
	return t, nil
}

// Item file names carry the page number, a label and a running index; loading
// a page directory sorts by that index to restore extraction order.
var itemFilePattern = regexp.MustCompile(`^page_(\d+)_([a-z]+)_(\d+)\.txt$`)

type itemFile struct {
	path  string
	label string
	index int
}

func listItemFiles(dir string, pageNumber int) ([]itemFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var items []itemFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := itemFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		page, _ := strconv.Atoi(m[1])
		if page != pageNumber {
			continue
		}
		index, _ := strconv.Atoi(m[3])
		items = append(items, itemFile{path: filepath.Join(dir, entry.Name()), label: m[2], index: index})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].index < items[j].index })
	return items, nil
}

func (e *ExtractedText) uploadToBlob(ctx context.Context, store BlobStore, container, prefix string) error {
	if e.Text == nil {
		return nil
	}
	return e.Text.UploadToBlob(ctx, store, container, prefix)
}

func (e *ExtractedImage) uploadToBlob(ctx context.Context, store BlobStore, container, prefix string) error {
	if e.Text == nil {
		return nil
	}
	return e.Text.UploadToBlob(ctx, store, container, prefix)
}

func (e *ExtractedTable) uploadToBlob(ctx context.Context, store BlobStore, container, prefix string) error {
	if e.Text == nil {
		return nil
	}
	return e.Text.UploadToBlob(ctx, store, container, prefix)
}
