package pipeline

import "fmt"

// PageFailure reports the page and stage a run died in. The resume token is
// not advanced for the failing stage, so the next run picks up exactly there.
type PageFailure struct {
	Page  int
	Stage string
	Err   error
}

func (e *PageFailure) Error() string {
	return fmt.Sprintf("page %d: stage %s: %v", e.Page, e.Stage, e.Err)
}

func (e *PageFailure) Unwrap() error { return e.Err }
