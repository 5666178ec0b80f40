package flair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auto_reddit_speakout_poster/logging"
)

// Detector identifies the politician in a cartoon and looks up their party.
type Detector struct {
	vision LLMClient
	lookup LLMClient
	now    func() time.Time
	logger logging.Logger
}

// NewDetector builds a Detector. lookup answers the party question and may be
// a search-capable model; nil reuses vision.
func NewDetector(vision, lookup LLMClient, logger logging.Logger) (*Detector, error) {
	if vision == nil {
		return nil, errors.New("llm client is required")
	}
	if lookup == nil {
		lookup = vision
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Detector{vision: vision, lookup: lookup, now: time.Now, logger: logger}, nil
}

// Detect runs both steps. A Detection without a party is a normal result;
// errors are reserved for failed model calls.
func (d *Detector) Detect(ctx context.Context, imageURL string) (Detection, error) {
	raw, err := d.vision.Complete(ctx, BuildIdentifyPrompt(imageURL))
	if err != nil {
		return Detection{}, fmt.Errorf("identify politician: %w", err)
	}
	det := ParseIdentifyReply(raw)
	if det.Person == "" {
		return det, nil
	}
	log := d.logger.WithFields(logging.Fields{"person": det.Person, "confidence": det.Confidence})
	log.Info("Identified politician")

	raw, err = d.lookup.Complete(ctx, BuildPartyPrompt(det.Person, d.now().Year()))
	if err != nil {
		return Detection{}, fmt.Errorf("look up party: %w", err)
	}
	party, reason, ok := ParsePartyReply(raw)
	if !ok {
		det.Reason = fmt.Sprintf("could not determine party for %q", det.Person)
		return det, nil
	}
	det.Party = party
	det.Reason = reason
	log.WithField("party", party).Info("Resolved party")
	return det, nil
}
