package card

import "encoding/json"

// StageKey names one phase of enrichment.
type StageKey string

const (
	StageClassify    StageKey = "classify"
	StageCategorize  StageKey = "categorize"
	StageMetadata    StageKey = "metadata"
	StageRenderables StageKey = "renderables"
)

// Stages lists the known stages in pipeline order.
var Stages = []StageKey{StageClassify, StageCategorize, StageMetadata, StageRenderables}

// ParseStage parses a stage name. Only known stages are accepted.
func ParseStage(s string) (StageKey, bool) {
	for _, k := range Stages {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// StageState is the status of a single stage.
type StageState string

const (
	StatePending    StageState = "pending"
	StateInProgress StageState = "in_progress"
	StateCompleted  StageState = "completed"
	StateFailed     StageState = "failed"
)

// StageStatus is the recorded state of one stage.
type StageStatus struct {
	Status     StageState `json:"status"`
	Confidence *float64   `json:"confidence,omitempty"` // classify/categorize only
	UpdatedAt  int64      `json:"updated_at"`
	Error      string     `json:"error,omitempty"`
}

// Stage builds a StageStatus without confidence.
func Stage(state StageState, now int64) *StageStatus {
	return &StageStatus{Status: state, UpdatedAt: now}
}

// StageWithConfidence builds a StageStatus with a clamped confidence.
func StageWithConfidence(state StageState, confidence float64, now int64) *StageStatus {
	c := ClampConfidence(confidence)
	return &StageStatus{Status: state, Confidence: &c, UpdatedAt: now}
}

// ProcessingStatus holds one entry per known stage. Stages this build does not
// know about are carried in Extra so they survive a round trip.
type ProcessingStatus struct {
	Classify    *StageStatus
	Categorize  *StageStatus
	Metadata    *StageStatus
	Renderables *StageStatus

	Extra map[string]StageStatus
}

// Get returns the entry for a known stage, or nil if unset.
func (p *ProcessingStatus) Get(stage StageKey) *StageStatus {
	switch stage {
	case StageClassify:
		return p.Classify
	case StageCategorize:
		return p.Categorize
	case StageMetadata:
		return p.Metadata
	case StageRenderables:
		return p.Renderables
	}
	return nil
}

// Set replaces the entry for a known stage.
func (p *ProcessingStatus) Set(stage StageKey, s *StageStatus) {
	switch stage {
	case StageClassify:
		p.Classify = s
	case StageCategorize:
		p.Categorize = s
	case StageMetadata:
		p.Metadata = s
	case StageRenderables:
		p.Renderables = s
	}
}

// Merge overlays every entry set in patch onto p. Entries patch leaves nil
// (and Extra keys it does not mention) are kept as they are.
func (p *ProcessingStatus) Merge(patch ProcessingStatus) {
	for _, stage := range Stages {
		if s := patch.Get(stage); s != nil {
			cp := *s
			p.Set(stage, &cp)
		}
	}
	if len(patch.Extra) > 0 {
		if p.Extra == nil {
			p.Extra = make(map[string]StageStatus, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			p.Extra[k] = v
		}
	}
}

// IsEmpty reports whether no stage has been recorded.
func (p *ProcessingStatus) IsEmpty() bool {
	for _, stage := range Stages {
		if p.Get(stage) != nil {
			return false
		}
	}
	return len(p.Extra) == 0
}

// MarshalJSON writes a flat object keyed by stage name.
func (p ProcessingStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]StageStatus, len(p.Extra)+len(Stages))
	for k, v := range p.Extra {
		out[k] = v
	}
	for _, stage := range Stages {
		if s := p.Get(stage); s != nil {
			out[string(stage)] = *s
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat object keyed by stage name.
func (p *ProcessingStatus) UnmarshalJSON(data []byte) error {
	var raw map[string]StageStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ProcessingStatus{}
	for k, v := range raw {
		if stage, ok := ParseStage(k); ok {
			s := v
			p.Set(stage, &s)
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]StageStatus)
		}
		p.Extra[k] = v
	}
	return nil
}
