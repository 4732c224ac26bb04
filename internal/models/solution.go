package models

// SolutionStep is one step of a worked solution. Math holds raw markup text
// ($...$ / $$...$$ delimited), not pre-rendered output.
type SolutionStep struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	Math        string `json:"math"`
}

// StructuredSolution is the decoded result of a solve request. Step order is
// significant and preserved verbatim from the backend.
type StructuredSolution struct {
	Description string         `json:"description"`
	Concepts    []string       `json:"concepts"`
	Steps       []SolutionStep `json:"steps"`
	FinalAnswer string         `json:"final_answer"`
	TutoringTip string         `json:"tutoring_tip,omitempty"`
}

// ExplanationLevel selects the verbosity/formality tier requested from the
// solving backend.
type ExplanationLevel string

const (
	LevelQuick    ExplanationLevel = "quick"
	LevelStandard ExplanationLevel = "standard"
	LevelDeep     ExplanationLevel = "deep"
	// LevelAcademic is a valid request level with no dedicated UI affordance.
	LevelAcademic ExplanationLevel = "academic"
)

func (l ExplanationLevel) Valid() bool {
	switch l {
	case LevelQuick, LevelStandard, LevelDeep, LevelAcademic:
		return true
	}
	return false
}

// ParseLevel returns the level named by s, or LevelStandard for anything
// unrecognized.
func ParseLevel(s string) ExplanationLevel {
	l := ExplanationLevel(s)
	if l.Valid() {
		return l
	}
	return LevelStandard
}
