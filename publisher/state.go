package publisher

// State names a step of the submission workflow. Transitions are logged.
type State int

const (
	StateStart State = iota
	StateFetchSource
	StateCheckDuplicate
	StateSkipped
	StateDryRun
	StateSubmitPrimary
	StateVerifyPrimary
	StateSubmitFallback
	StateVerifyFallback
	StateAnnotate
	// StateAmbiguousFailure: the image post was accepted but did not verify.
	// A post probably exists, so no fallback is attempted.
	StateAmbiguousFailure
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:            "start",
	StateFetchSource:      "fetch_source",
	StateCheckDuplicate:   "check_duplicate",
	StateSkipped:          "skipped",
	StateDryRun:           "dry_run",
	StateSubmitPrimary:    "submit_primary",
	StateVerifyPrimary:    "verify_primary",
	StateSubmitFallback:   "submit_fallback",
	StateVerifyFallback:   "verify_fallback",
	StateAnnotate:         "annotate",
	StateAmbiguousFailure: "ambiguous_failure",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText keeps log fields readable.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
