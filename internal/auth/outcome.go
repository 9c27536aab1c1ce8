package auth

// ErrorKind classifies why a request was not allowed through
type ErrorKind string

const (
	// KindAuthenticationRequired means no credential was sent to a protected route
	KindAuthenticationRequired ErrorKind = "AuthenticationRequired"
	// KindInvalidCredentials means no principal owns the username and token pair
	KindInvalidCredentials ErrorKind = "InvalidCredentials"
	// KindMalformedCredential means a credential was extracted but is incomplete.
	// It is rendered exactly like KindInvalidCredentials.
	KindMalformedCredential ErrorKind = "MalformedCredential"
	// KindTokenExpired means the token matched but is past its lifetime
	KindTokenExpired ErrorKind = "TokenExpired"
	// KindPermissionDenied means the principal lacks a required permission
	KindPermissionDenied ErrorKind = "PermissionDenied"
)

// Status is the state of an authentication attempt
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticated
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusRejected:
		return "rejected"
	default:
		return "anonymous"
	}
}

// Outcome is the result of authenticating one request.
// Principal is set only for StatusAuthenticated, Kind only for StatusRejected.
type Outcome struct {
	Status    Status
	Principal *Principal
	Kind      ErrorKind
	Reason    string
}

// Authenticated returns a successful outcome for p
func Authenticated(p *Principal) Outcome {
	return Outcome{Status: StatusAuthenticated, Principal: p}
}

// Anonymous returns the outcome for a request without credentials
func Anonymous() Outcome {
	return Outcome{Status: StatusAnonymous}
}

// Rejected returns a failed outcome
func Rejected(kind ErrorKind, reason string) Outcome {
	return Outcome{Status: StatusRejected, Kind: kind, Reason: reason}
}

// IsAuthenticated reports whether the outcome carries a principal
func (o Outcome) IsAuthenticated() bool {
	return o.Status == StatusAuthenticated && o.Principal != nil
}
