package flair

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var jsonObjectRe = regexp.MustCompile(`(?s)\{[^{}]*\}`)

type identifyReply struct {
	Person     *string `json:"person"`
	Confidence string  `json:"confidence"`
	Reason     string  `json:"reason"`
}

type partyReply struct {
	Party  string `json:"party"`
	Reason string `json:"reason"`
}

// extractJSON returns the first flat JSON object in raw; models like to wrap
// answers in prose or code fences.
func extractJSON(raw string) (string, error) {
	m := jsonObjectRe.FindString(strings.TrimSpace(raw))
	if m == "" {
		return "", errors.New("no JSON object in model reply")
	}
	return m, nil
}

// ParseIdentifyReply reads the vision reply. A missing person is not an
// error: the Detection carries the model's reason instead.
func ParseIdentifyReply(raw string) Detection {
	obj, err := extractJSON(raw)
	if err != nil {
		return Detection{Reason: "could not parse response: " + strings.TrimSpace(raw)}
	}
	var r identifyReply
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return Detection{Reason: "could not parse response: " + strings.TrimSpace(raw)}
	}
	if r.Person == nil || strings.TrimSpace(*r.Person) == "" {
		reason := r.Reason
		if reason == "" {
			reason = "could not identify person"
		}
		return Detection{Reason: reason}
	}
	confidence := "high"
	if r.Confidence == "low" {
		confidence = "low"
	}
	return Detection{Person: strings.TrimSpace(*r.Person), Confidence: confidence}
}

// ParsePartyReply returns the party named in raw if it is one of KnownParties.
func ParsePartyReply(raw string) (Party, string, bool) {
	obj, err := extractJSON(raw)
	if err != nil {
		return "", "", false
	}
	var r partyReply
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return "", "", false
	}
	p, ok := ParseParty(strings.ToUpper(strings.TrimSpace(r.Party)))
	return p, r.Reason, ok
}
