package score

import (
	"fmt"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/synqronlabs/posture/dns"
)

// Breakdown holds the score of each protocol.
type Breakdown struct {
	DMARC ProtocolScore `json:"dmarc"`
	SPF   ProtocolScore `json:"spf"`
	DKIM  ProtocolScore `json:"dkim"`
}

// Report is the scored email security posture of a domain.
type Report struct {
	ID         string    `json:"id"`
	Domain     string    `json:"domain"`
	TotalScore int       `json:"totalScore"`
	Grade      Grade     `json:"grade"`
	RiskLevel  Risk      `json:"riskLevel"`
	RiskColor  string    `json:"riskColor"`
	Breakdown  Breakdown `json:"breakdown"`
	Summary    string    `json:"summary"`
	Timestamp  time.Time `json:"timestamp"`
}

// Input is what Calculate scores.
type Input struct {
	ID     string
	Domain string
	DMARC  dns.QueryResult
	SPF    dns.QueryResult
	DKIM   []dns.QueryResult

	// Timestamp defaults to the current time.
	Timestamp time.Time
}

// Calculate scores the three protocols and builds a report.
func Calculate(in Input) *Report {
	b := Breakdown{
		DMARC: DMARC(in.DMARC),
		SPF:   SPF(in.SPF),
		DKIM:  DKIM(in.DKIM),
	}

	total := b.DMARC.Score + b.SPF.Score + b.DKIM.Score
	grade := GradeFor(total)
	risk := RiskFor(grade)

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &Report{
		ID:         in.ID,
		Domain:     in.Domain,
		TotalScore: total,
		Grade:      grade,
		RiskLevel:  risk,
		RiskColor:  risk.Color(),
		Breakdown:  b,
		Summary:    summary(in.Domain, total, grade, risk, b),
		Timestamp:  ts,
	}
}

func summary(domain string, total int, grade Grade, risk Risk, b Breakdown) string {
	name := domain
	if name == "" {
		name = "The domain"
	}
	s := fmt.Sprintf("%s scores %d/100 (grade %s, %s risk). DMARC %d/%d, SPF %d/%d, DKIM %d/%d.",
		name, total, grade, risk,
		b.DMARC.Score, b.DMARC.MaxScore, b.SPF.Score, b.SPF.MaxScore, b.DKIM.Score, b.DKIM.MaxScore)

	var failing []string
	for _, p := range []struct {
		name  string
		score ProtocolScore
	}{{"DMARC", b.DMARC}, {"SPF", b.SPF}, {"DKIM", b.DKIM}} {
		if p.score.Status == StatusFail {
			failing = append(failing, p.name)
		}
	}
	switch len(failing) {
	case 0:
		s += " All protocols are in good shape."
	case 1:
		s += " " + failing[0] + " needs attention."
	default:
		s += " Needs attention:"
		for i, f := range failing {
			if i > 0 {
				s += ","
			}
			s += " " + f
		}
		s += "."
	}
	return s
}

// MarshalMsg appends the MessagePack encoding of the report to b.
// Parsed record details are not encoded.
func (z *Report) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 9)
	o = msgp.AppendString(o, "id")
	o = msgp.AppendString(o, z.ID)
	o = msgp.AppendString(o, "domain")
	o = msgp.AppendString(o, z.Domain)
	o = msgp.AppendString(o, "totalScore")
	o = msgp.AppendInt(o, z.TotalScore)
	o = msgp.AppendString(o, "grade")
	o = msgp.AppendString(o, string(z.Grade))
	o = msgp.AppendString(o, "riskLevel")
	o = msgp.AppendString(o, string(z.RiskLevel))
	o = msgp.AppendString(o, "riskColor")
	o = msgp.AppendString(o, z.RiskColor)
	o = msgp.AppendString(o, "breakdown")
	o = msgp.AppendMapHeader(o, 3)
	o = msgp.AppendString(o, "dmarc")
	o = z.Breakdown.DMARC.appendMsg(o)
	o = msgp.AppendString(o, "spf")
	o = z.Breakdown.SPF.appendMsg(o)
	o = msgp.AppendString(o, "dkim")
	o = z.Breakdown.DKIM.appendMsg(o)
	o = msgp.AppendString(o, "summary")
	o = msgp.AppendString(o, z.Summary)
	o = msgp.AppendString(o, "timestamp")
	o = msgp.AppendTime(o, z.Timestamp)
	return o, nil
}

func (p ProtocolScore) appendMsg(o []byte) []byte {
	n := uint32(5)
	if p.Selector != "" {
		n++
	}
	o = msgp.AppendMapHeader(o, n)
	o = msgp.AppendString(o, "score")
	o = msgp.AppendInt(o, p.Score)
	o = msgp.AppendString(o, "maxScore")
	o = msgp.AppendInt(o, p.MaxScore)
	o = msgp.AppendString(o, "status")
	o = msgp.AppendString(o, string(p.Status))
	o = msgp.AppendString(o, "issues")
	o = appendStrings(o, p.Issues)
	o = msgp.AppendString(o, "recommendations")
	o = appendStrings(o, p.Recommendations)
	if p.Selector != "" {
		o = msgp.AppendString(o, "selector")
		o = msgp.AppendString(o, p.Selector)
	}
	return o
}

func appendStrings(o []byte, list []string) []byte {
	o = msgp.AppendArrayHeader(o, uint32(len(list)))
	for _, s := range list {
		o = msgp.AppendString(o, s)
	}
	return o
}
