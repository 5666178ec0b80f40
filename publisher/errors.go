package publisher

import "errors"

// Failure kinds. Concrete errors wrap one of these, so errors.Is picks the branch.
var (
	ErrFetch        = errors.New("fetch source")
	ErrAuth         = errors.New("authenticate")
	ErrUpload       = errors.New("upload image")
	ErrSubmit       = errors.New("submit post")
	ErrVerification = errors.New("verify post")
	ErrAnnotation   = errors.New("add source comment")
	ErrLedgerWrite  = errors.New("write run history")
)
