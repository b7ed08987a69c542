package pipeline

import (
	"time"

	"github.com/goliatone/go-contentpack/internal/storage"
)

// State is a document's position in the pipeline.
type State string

const (
	StateDiscovered State = "discovered"
	StateParsed     State = "parsed"
	StateCompiled   State = "compiled"
	StateDiffed     State = "diffed"
	StateUnchanged  State = "unchanged"
	StateWritten    State = "written"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateUnchanged || s == StateWritten || s == StateFailed
}

// DocumentOutcome is the terminal result of one document. For failures,
// Stage names the step that failed: Parsed for unreadable or malformed
// sources, Compiled for validation and resource errors, Diffed for hash
// lookups, uploads and row writes.
type DocumentOutcome struct {
	Path     string
	ID       string
	UUID     string
	State    State
	Stage    State
	Hash     string
	Uploads  []storage.Outcome
	Warnings []error
	Err      error
	Duration time.Duration
}

// Report aggregates the outcomes of one run.
type Report struct {
	RunID     string
	Documents int
	Written   int
	Unchanged int
	Failed    int

	Uploaded      int
	Skipped       int
	UploadFailed  int
	BytesUploaded int64

	// Pruned lists documents removed because they left the source.
	Pruned []string

	Outcomes []DocumentOutcome
	Duration time.Duration
}

// OK reports whether every document reached Written or Unchanged.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Failures lists the failed documents in path order.
func (r *Report) Failures() []DocumentOutcome {
	var out []DocumentOutcome
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) add(o DocumentOutcome) {
	r.Documents++
	switch o.State {
	case StateWritten:
		r.Written++
	case StateUnchanged:
		r.Unchanged++
	case StateFailed:
		r.Failed++
	}
	for _, u := range o.Uploads {
		switch u.Status {
		case storage.StatusUploaded:
			r.Uploaded++
			r.BytesUploaded += u.Pointer.Size
		case storage.StatusSkipped:
			r.Skipped++
		case storage.StatusFailed:
			r.UploadFailed++
		}
	}
	r.Outcomes = append(r.Outcomes, o)
}
