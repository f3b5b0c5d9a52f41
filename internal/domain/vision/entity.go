package vision

// Label is one object-detection result. Confidence and AreaFraction are
// normalized to [0,1].
type Label struct {
	Name         string  `json:"name"`
	Confidence   float64 `json:"confidence"`
	AreaFraction float64 `json:"area_fraction"`
}

// GridImage is a composite of several collection files packed into one
// picture. Positions maps the numeric cell label drawn on the grid back to
// the original file id.
type GridImage struct {
	JPEG      []byte
	Positions map[string]string
}

// GridSource is one file to place on a composite grid.
type GridSource struct {
	FileID string
	Data   []byte
}

// AssessRequest is one reasoning-service invocation for a single
// description rule.
type AssessRequest struct {
	Model        string
	SystemPrompt string
	UserText     string
	Grids        []GridImage
}

// Assessment is the structured reasoning result for one rule.
type Assessment struct {
	ImageFound     bool     `json:"image_found"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	MatchedFileIDs []string `json:"matched_file_ids,omitempty"`
	InputTokens    int      `json:"input_tokens"`
	OutputTokens   int      `json:"output_tokens"`
	Cost           float64  `json:"cost"`
}
