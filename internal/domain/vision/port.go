package vision

import (
	"context"
	"time"
)

// Detector port: fast object-detection classifier.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Label, error)
}

// Assessor port: generative vision-language reasoning service.
type Assessor interface {
	Assess(ctx context.Context, req AssessRequest) (*Assessment, error)
}

// GridBuilder port: packs collection files into composite grid images.
type GridBuilder interface {
	Build(sources []GridSource, maxPerGrid int) ([]GridImage, error)
}

// Searcher port: best-effort web search keyed on a rule description.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// FileStore port: collection file bytes and presigned access.
type FileStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
