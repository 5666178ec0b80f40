package flair

import (
	"fmt"
	"strings"
)

// Prompt is one system/user exchange. ImageURL, when set, is attached to the
// user message.
type Prompt struct {
	System    string
	User      string
	ImageURL  string
	MaxTokens int64
}

const identifySystemPrompt = `You are an expert on Indian politics and political cartoons.
Given an editorial cartoon image, identify the main Indian politician or political figure depicted.
Respond with JSON only, no markdown, in one of these two shapes:
{"person":"<full name>","confidence":"high"|"low"}
{"person":null,"reason":"<why you cannot identify anyone>"}`

// BuildIdentifyPrompt asks a vision model who the cartoon is about.
func BuildIdentifyPrompt(imageURL string) Prompt {
	return Prompt{
		System:    identifySystemPrompt,
		User:      "Who is the main politician in this cartoon?",
		ImageURL:  imageURL,
		MaxTokens: 100,
	}
}

// BuildPartyPrompt asks which of KnownParties person currently belongs to.
func BuildPartyPrompt(person string, year int) Prompt {
	names := make([]string, len(KnownParties))
	for i, p := range KnownParties {
		names[i] = string(p)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Which Indian political party does %s currently belong to as of %d? ", person, year))
	sb.WriteString(fmt.Sprintf("Choose exactly one from this list: %s. ", strings.Join(names, ", ")))
	sb.WriteString("NDA and UPA are alliances; use them only if the person represents the alliance as a whole, not a member party. ")
	sb.WriteString(`Reply with a single JSON object: {"party":"<name>","reason":"<one sentence>"}`)
	return Prompt{
		System:    "Answer with the requested JSON object only.",
		User:      sb.String(),
		MaxTokens: 200,
	}
}
