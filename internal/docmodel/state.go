package docmodel

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// StateFile is the resume token's file name in the output directory.
const StateFile = "pipeline_state.json"

// Extraction stages tracked by the resume token.
const (
	StageText       = "text"
	StageImages     = "images"
	StageTables     = "tables"
	StageCustomPage = "custom_page"
)

// Stages lists the per-page stages in execution order.
var Stages = []string{StageText, StageImages, StageTables, StageCustomPage}

// PipelineState records, per extraction stage, which pages have completed,
// plus whether post-processing ran. Page sets only ever grow during a run and
// PostProcessingDone flips false to true exactly once.
type PipelineState struct {
	TextExtractedPages   []int `json:"text_extracted_pages"`
	ImagesExtractedPages []int `json:"images_extracted_pages"`
	TablesExtractedPages []int `json:"tables_extracted_pages"`
	CustomPageStepsPages []int `json:"custom_page_processing_steps_pages"`
	PostProcessingDone   bool  `json:"post_processing_done"`
}

// NewPipelineState returns an empty state.
func NewPipelineState() *PipelineState {
	return &PipelineState{
		TextExtractedPages:   []int{},
		ImagesExtractedPages: []int{},
		TablesExtractedPages: []int{},
		CustomPageStepsPages: []int{},
	}
}

func (s *PipelineState) pages(stage string) *[]int {
	switch stage {
	case StageText:
		return &s.TextExtractedPages
	case StageImages:
		return &s.ImagesExtractedPages
	case StageTables:
		return &s.TablesExtractedPages
	case StageCustomPage:
		return &s.CustomPageStepsPages
	}
	return nil
}

// Done reports whether a page completed a stage in an earlier run.
func (s *PipelineState) Done(stage string, page int) bool {
	set := s.pages(stage)
	if set == nil {
		return false
	}
	for _, p := range *set {
		if p == page {
			return true
		}
	}
	return false
}

// MarkDone appends a page to a stage's completed set. Marks are monotone; a
// repeated mark is a no-op.
func (s *PipelineState) MarkDone(stage string, page int) {
	if s.Done(stage, page) {
		return
	}
	set := s.pages(stage)
	if set == nil {
		return
	}
	*set = append(*set, page)
	sort.Ints(*set)
}

// Save persists the state into the output directory.
func (s *PipelineState) Save(outputDir string) error {
	return SaveJSON(filepath.Join(outputDir, StateFile), s)
}

// LoadPipelineState reads the resume token. A missing file yields a fresh
// state; a corrupt file is replaced by a fresh state and logged, so a damaged
// token costs a re-run rather than a dead document.
func LoadPipelineState(outputDir string) *PipelineState {
	path := filepath.Join(outputDir, StateFile)
	if !fileExists(path) {
		return NewPipelineState()
	}
	s := NewPipelineState()
	if err := LoadJSON(path, s); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("pipeline state corrupt; starting fresh")
		return NewPipelineState()
	}
	return s
}

// ResetPipelineState deletes the resume token and returns a fresh state.
func ResetPipelineState(outputDir string) *PipelineState {
	_ = os.Remove(filepath.Join(outputDir, StateFile))
	return NewPipelineState()
}
