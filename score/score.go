// Package score turns DMARC, SPF and DKIM lookups into bounded protocol
// scores, a 0-100 total, a letter grade and a risk level.
//
// Every function in this package is pure: identical lookups always produce
// identical scores, issues and recommendations.
package score

// Maximum score per protocol.
const (
	MaxDMARC = 40
	MaxSPF   = 30
	MaxDKIM  = 30
)

// Status summarizes a protocol score.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
)

// StatusFor returns the status of score out of maxScore: success at 70% or
// more, warning at 45% or more, fail below.
func StatusFor(score, maxScore int) Status {
	switch {
	case maxScore <= 0:
		return StatusFail
	case score*100 >= 70*maxScore:
		return StatusSuccess
	case score*100 >= 45*maxScore:
		return StatusWarning
	default:
		return StatusFail
	}
}

// ProtocolScore is the score of one protocol.
type ProtocolScore struct {
	Score           int      `json:"score"`
	MaxScore        int      `json:"maxScore"`
	Status          Status   `json:"status"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`

	// Selector is the DKIM selector whose record was scored.
	Selector string `json:"selector,omitempty"`

	// Details is the parsed record that was scored: *dmarc.Record,
	// *spf.Record or *dkim.Record.
	Details any `json:"details,omitempty"`
}

func newScore(maxScore int) ProtocolScore {
	return ProtocolScore{
		MaxScore:        maxScore,
		Issues:          []string{},
		Recommendations: []string{},
	}
}

func (p *ProtocolScore) issue(s string) {
	p.Issues = append(p.Issues, s)
}

func (p *ProtocolScore) recommend(s string) {
	p.Recommendations = append(p.Recommendations, s)
}

// finish clamps the score and sets the status.
func (p *ProtocolScore) finish() ProtocolScore {
	p.Score = max(0, min(p.Score, p.MaxScore))
	p.Status = StatusFor(p.Score, p.MaxScore)
	return *p
}

// Grade is a letter grade from A to F.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Risk is the risk level implied by a grade.
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// GradeFor returns the grade of a 0-100 total score.
func GradeFor(total int) Grade {
	switch {
	case total >= 85:
		return GradeA
	case total >= 75:
		return GradeB
	case total >= 65:
		return GradeC
	case total >= 50:
		return GradeD
	default:
		return GradeF
	}
}

// RiskFor returns the risk level of a grade.
func RiskFor(g Grade) Risk {
	switch g {
	case GradeA, GradeB:
		return RiskLow
	case GradeC, GradeD:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Color returns the display color of a risk level as a hex RGB string.
func (r Risk) Color() string {
	switch r {
	case RiskLow:
		return "#22c55e"
	case RiskMedium:
		return "#f59e0b"
	default:
		return "#ef4444"
	}
}
