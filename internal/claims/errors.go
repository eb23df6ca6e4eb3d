// errors.go defines the sentinel error values for the ownership-claim flow.
// Every failure a caller can act on has its own value; the HTTP layer maps
// them to status codes and the CLI surfaces them verbatim.
package claims

import "errors"

var (
	// Initiate-time input errors
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidGistURL  = errors.New("gist URL must look like https://gist.github.com/<user>/<id>")
	ErrInvalidHandle   = errors.New("github handle is missing or malformed")

	// Verify-time protocol errors
	ErrNoPendingClaim = errors.New("no pending claim for this profile")
	ErrClaimExpired   = errors.New("verification code has expired; initiate a new claim")
	ErrAlreadyClaimed = errors.New("profile is already claimed")
	ErrCodeNotFound   = errors.New("verification code not found in gist content")
	ErrHandleMismatch = errors.New("gist is not owned by the supplied github handle")

	// Out-of-band fetch errors. ErrGistNotFound is distinguished from
	// transport failure so the user-facing message can say "check the URL"
	// instead of "try again later".
	ErrGistNotFound = errors.New("gist not found")
	ErrGistFetch    = errors.New("failed to fetch gist content")
)
