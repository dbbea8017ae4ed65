package policy

import "fmt"

// PolicyError wraps a ruleset failure: unreadable or refused ruleset
// paths, evaluation errors, runtime panics, and missing or wrong-typed
// entry points. Import whitelist violations are reported as *SandboxError
// instead. The evaluation that produced it yields an empty decision set
// and leaves the session's active skills untouched.
type PolicyError struct {
	Ruleset    string
	Diagnostic string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %s failed: %s", e.Ruleset, e.Diagnostic)
}

// SandboxError reports a sandbox violation with its provenance. It is a
// separate type from PolicyError (errors.As for *PolicyError does not
// match it); callers check for both and handle them alike.
type SandboxError struct {
	Ruleset string
	Detail  string
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("policy %s sandbox violation: %s", e.Ruleset, e.Detail)
}
