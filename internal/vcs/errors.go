package vcs

// AccessDeniedError signals a private repository accessed by a non-owner.
type AccessDeniedError struct {
	RepoID string
}

func (e *AccessDeniedError) Error() string {
	return "access to repository " + e.RepoID + " denied"
}

// InvalidOperationError signals a request that is well-formed but not
// applicable to the current state, such as merging from a branch with no
// commits or reverting a root commit.
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return e.Reason
}
