package auth

// Claim is what the identity provider asserts about the logged-in person.
// Only the fields below are kept; the rest of the ID token is discarded.
type Claim struct {
	Subject  string `json:"sub"`
	Nickname string `json:"nickname"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
}

// Identity is the per-request answer to "who is on the other end of this
// session?". The session layer builds one per request and handlers take it
// as an argument, so nothing reads session state behind their back.
//
// The zero value is an anonymous identity.
type Identity struct {
	claim *Claim
}

// Anonymous returns an unauthenticated Identity.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns an Identity for a verified claim.
func Authenticated(c Claim) Identity {
	return Identity{claim: &c}
}

// IsAuthenticated reports whether the session holds a verified claim.
func (i Identity) IsAuthenticated() bool {
	return i.claim != nil
}

// Claim returns a copy of the session claim, or false when anonymous.
func (i Identity) Claim() (Claim, bool) {
	if i.claim == nil {
		return Claim{}, false
	}
	return *i.claim, true
}
