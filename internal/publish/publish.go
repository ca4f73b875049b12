// Package publish submits finalized drafts to the publishing platform.
package publish

import (
	"context"
	"fmt"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
)

// Gateway performs the external publish of a finalized draft with an
// optional image. Implementations report success with the external post
// identifier or fail with a *publish.Error naming the failed stage; they
// never retry on their own.
type Gateway interface {
	Publish(ctx context.Context, d composer.Draft, image []byte) (*Outcome, error)
}

// Outcome identifies a successfully published post.
type Outcome struct {
	PostID   string
	AssetURN string
}

// Publish stages, in order.
const (
	StageUpload     = "upload"
	StageSubmission = "submission"
)

// Error is a publish failure attributed to one stage. An upload that
// succeeds followed by a failed submission is still a submission failure;
// the uploaded asset is never referenced by a post.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish %s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
