package finding

import "maps"

// Candidate is the shape shared by every detector's findings. Domain findings
// embed it and add their own typed attributes.
//
// Confidence is derived from Evidence by Rescore or Accepted and is only
// raised afterwards by Merge, which keeps the maximum seen for a key.
type Candidate struct {
	Subject    string         `json:"subject,omitempty"`
	Target     string         `json:"target"`
	Kind       string         `json:"kind"`
	Evidence   []Evidence     `json:"evidence"`
	Confidence float64        `json:"confidence"`
	OriginFile string         `json:"origin_file,omitempty"`
	OriginLine int            `json:"origin_line,omitempty"` // 0 when unknown
	FilePaths  []string       `json:"file_paths,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Add appends a fragment. Fragments with a weight outside (0,1] are dropped
// and reported as false.
func (c *Candidate) Add(reason string, weight float64) bool {
	ev, err := NewEvidence(reason, weight)
	if err != nil {
		return false
	}
	c.Evidence = append(c.Evidence, ev)
	return true
}

// Rescore derives Confidence from the current evidence.
func (c *Candidate) Rescore() float64 {
	c.Confidence = Score(c.Evidence)
	return c.Confidence
}

// Accepted rescores the candidate and applies the threshold.
func (c *Candidate) Accepted(threshold float64) bool {
	c.Rescore()
	return Accept(c.Evidence, threshold)
}

// Trail joins the evidence reasons with "; ".
func (c *Candidate) Trail() string { return Trail(c.Evidence) }

// SetExtra records an open attribute, allocating the map on first use.
func (c *Candidate) SetExtra(key string, v any) {
	if c.Extra == nil {
		c.Extra = make(map[string]any)
	}
	c.Extra[key] = v
}

// Clone returns a deep copy of the slices and a shallow copy of Extra.
func (c Candidate) Clone() Candidate {
	out := c
	out.Evidence = append([]Evidence(nil), c.Evidence...)
	out.FilePaths = append([]string(nil), c.FilePaths...)
	if c.Extra != nil {
		out.Extra = maps.Clone(c.Extra)
	}
	return out
}
