package plan

import (
	"fmt"
	"strings"

	"github.com/synqronlabs/posture/score"
)

// remedy is a set of steps applying to items whose title contains match.
type remedy struct {
	match string
	steps []string
}

// catalog lists remedies per protocol, most specific first.
var catalog = map[Protocol][]remedy{
	ProtocolDMARC: {
		{"record error", fixSyntax("DMARC record")},
		{"multiple dmarc records", mergeDMARC},
		{"keep exactly one dmarc record", mergeDMARC},
		{"lookup failed", checkNameServers},
		{"no dmarc record", publishDMARC},
		{"publish a dmarc record", publishDMARC},
		{"% of messages", raisePct},
		{"pct", raisePct},
		{"policy", []string{
			"Review aggregate reports to confirm legitimate mail passes SPF or DKIM alignment",
			"Update p= in the DMARC record",
			"Monitor reports after the change",
		}},
		{"accepts dmarc reports", []string{
			"Ask the operator of the report mailbox to publish the authorization record",
			"The record is a TXT record containing v=DMARC1",
		}},
		{"rua", []string{
			"Choose a mailbox or a DMARC reporting service",
			"Add rua=mailto:<address> to the DMARC record",
		}},
		{"ruf", []string{
			"Choose a mailbox that may receive message samples",
			"Add ruf=mailto:<address> to the DMARC record",
		}},
		{"sp ", []string{
			"Add sp=quarantine or sp=reject to the DMARC record",
		}},
	},
	ProtocolSPF: {
		{"multiple spf records", mergeSPF},
		{"merge all spf records", mergeSPF},
		{"lookup failed", checkNameServers},
		{"no spf record", publishSPF},
		{"publish an spf record", publishSPF},
		{"dns lookups", []string{
			"Replace include: mechanisms of static senders with ip4:/ip6: ranges",
			"Remove includes of services no longer in use",
			"Keep the total at 10 lookups or fewer",
		}},
		{"record error", fixSyntax("SPF record")},
		{"+all", []string{
			"Replace +all with -all or ~all",
			"Make sure every legitimate sender is listed before the all mechanism",
		}},
		{"ptr", []string{
			"Replace ptr with a, mx or ip4:/ip6: mechanisms",
		}},
		{"all", []string{
			"Confirm every sender is covered by the record",
			"End the record with -all",
		}},
	},
	ProtocolDKIM: {
		{"record error", fixSyntax("DKIM key record")},
		{"no dkim records", publishDKIM},
		{"publish a dkim key", publishDKIM},
		{"revoked", rotateDKIM},
		{"weak", rotateDKIM},
		{"2048", rotateDKIM},
		{"sha256", []string{
			"Remove h= or include sha256 in it",
		}},
		{"test mode", []string{
			"Confirm signed mail verifies at major receivers",
			"Remove t=y from the key record",
		}},
	},
}

var (
	checkNameServers = []string{
		"Check that the authoritative name servers answer TXT queries",
		"Run the analysis again",
	}
	mergeDMARC = []string{
		"List the TXT records at _dmarc.<domain>",
		"Merge the policies into one v=DMARC1 record",
		"Delete the other records",
	}
	publishDMARC = []string{
		"Create a TXT record at _dmarc.<domain>",
		"Start with v=DMARC1; p=none; rua=mailto:dmarc-reports@<domain>",
		"Review aggregate reports for two to four weeks",
		"Move to p=quarantine and then p=reject",
	}
	raisePct = []string{
		"Increase pct= step by step while watching reports",
		"Remove pct= or set pct=100",
	}
	mergeSPF = []string{
		"List the TXT records of the domain starting with v=spf1",
		"Combine their mechanisms into one record",
		"Delete the other SPF records",
	}
	publishSPF = []string{
		"List every service that sends mail for the domain",
		"Publish a TXT record such as v=spf1 include:<provider> -all",
	}
	publishDKIM = []string{
		"Enable DKIM signing at your mail provider",
		"Publish the public key at <selector>._domainkey.<domain>",
		"Send a test message and check the DKIM-Signature verifies",
	}
	rotateDKIM = []string{
		"Generate a 2048-bit RSA key pair",
		"Publish it under a new selector",
		"Switch signing to the new selector",
		"Remove the old key after a few days",
	}
)

func fixSyntax(record string) []string {
	return []string{
		"Fix the reported syntax problem in the " + record,
		"Validate the record again",
	}
}

// stepsFor returns the steps of the first remedy matching title.
func stepsFor(protocol Protocol, title string) []string {
	t := strings.ToLower(title)
	for _, r := range catalog[protocol] {
		if strings.Contains(t, r.match) {
			return append([]string(nil), r.steps...)
		}
	}
	return []string{}
}

func protocolName(p Protocol) string {
	return strings.ToUpper(string(p))
}

func describeIssue(p Protocol, s score.ProtocolScore) string {
	return fmt.Sprintf("%s scores %d of %d (%s). This problem lowers the score today.",
		protocolName(p), s.Score, s.MaxScore, s.Status)
}

func describeRecommendation(p Protocol, s score.ProtocolScore) string {
	return fmt.Sprintf("%s scores %d of %d (%s). This change strengthens the configuration.",
		protocolName(p), s.Score, s.MaxScore, s.Status)
}
