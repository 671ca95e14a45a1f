package jobs

import "errors"

// StatusCompleted is the only job status; a job either found the secret or
// did not, and both are completions.
const StatusCompleted = "completed"

var (
	// ErrProvisioning means the transient wordlist could not be created
	ErrProvisioning = errors.New("wordlist provisioning failed")
	// ErrProcessSpawn means jwt_tool could not be started
	ErrProcessSpawn = errors.New("jwt_tool could not be started")
)

// CrackRequest is a job submission. Wordlist, when set, is literal
// newline-delimited content, not a path.
type CrackRequest struct {
	Token    string  `json:"token"`
	Wordlist *string `json:"wordlist,omitempty"`
}

// CrackResult is produced once per job at finalization
type CrackResult struct {
	Status  string `json:"status"`
	Secret  string `json:"secret,omitempty"`
	Hash    string `json:"hash,omitempty"`
	Message string `json:"message,omitempty"`
	// Verified reports whether the secret reproduces the token signature;
	// only set when a secret was found
	Verified *bool `json:"verified,omitempty"`
}

// Found reports whether the job recovered a secret
func (r *CrackResult) Found() bool {
	return r != nil && r.Secret != ""
}
