package posture

import (
	"context"

	"github.com/synqronlabs/posture/dns"
	"github.com/synqronlabs/posture/plan"
	"github.com/synqronlabs/posture/score"
)

type (
	// QueryResult is the outcome of one TXT lookup.
	QueryResult = dns.QueryResult
	// Answer is one TXT record.
	Answer = dns.Answer
	// Report is a scored domain.
	Report = score.Report
	// ProtocolScore is the score of one protocol.
	ProtocolScore = score.ProtocolScore
	// ActionItem is one step of a remediation plan.
	ActionItem = plan.ActionItem
)

// DefaultActionLimit is the plan length used by Analyze when none is given.
const DefaultActionLimit = plan.DefaultLimit

// CalculateEmailSecurityScore scores the records in data.
func CalculateEmailSecurityScore(data *SecurityData) *Report {
	if data == nil {
		return score.Calculate(score.Input{})
	}
	return score.Calculate(score.Input{
		ID:        data.ID,
		Domain:    data.Domain,
		DMARC:     data.DMARC,
		SPF:       data.SPF,
		DKIM:      data.DKIM,
		Timestamp: data.Timestamp,
	})
}

// GenerateActionPlan returns at most limit action items for report, most
// urgent first. A limit of zero or less means DefaultActionLimit.
func GenerateActionPlan(report *Report, limit int) []ActionItem {
	return plan.Generate(report, limit)
}

// Analysis is the full result of analyzing a domain.
type Analysis struct {
	Data       *SecurityData `json:"-"`
	Report     *Report       `json:"report"`
	ActionPlan []ActionItem  `json:"actionPlan"`
}

// Analyze checks domain, scores it and generates an action plan of at most
// limit items.
func (c *Checker) Analyze(ctx context.Context, domain string, limit int) (*Analysis, error) {
	data, err := c.CheckEmailSecurity(ctx, domain)
	if err != nil {
		return nil, err
	}
	report := CalculateEmailSecurityScore(data)
	return &Analysis{
		Data:       data,
		Report:     report,
		ActionPlan: GenerateActionPlan(report, limit),
	}, nil
}
