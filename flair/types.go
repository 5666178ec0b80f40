// Package flair works out which party the politician in a cartoon belongs to,
// so the post can carry a matching link flair.
package flair

// Party is one of the labels the subreddit has flair for.
type Party string

const (
	PartyBJP Party = "BJP"
	PartyINC Party = "INC"
	PartyUPA Party = "UPA"
	PartyNDA Party = "NDA"
	PartyAAP Party = "AAP"
	PartySP  Party = "SP"
	PartyBSP Party = "BSP"
	PartyTMC Party = "TMC"
)

// KnownParties lists every Party in prompt order.
var KnownParties = []Party{PartyBJP, PartyINC, PartyUPA, PartyNDA, PartyAAP, PartySP, PartyBSP, PartyTMC}

// ParseParty matches s against KnownParties exactly.
func ParseParty(s string) (Party, bool) {
	for _, p := range KnownParties {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Detection is the outcome of a detection. Party is empty when nobody could
// be identified or the party was not one of KnownParties; Reason says why.
type Detection struct {
	Party      Party  `json:"party,omitempty"`
	Person     string `json:"person,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Found reports whether a known party was detected.
func (d Detection) Found() bool {
	return d.Party != ""
}
