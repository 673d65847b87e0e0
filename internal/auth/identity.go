package auth

// Identity is the authenticated principal attached to a request.
//
// It is a closed sum type: the unexported method means only this package can
// add variants, so a type switch over LocalIdentity and OAuth2Identity is
// exhaustive.
//
//	switch id := identity.(type) {
//	case auth.LocalIdentity:
//	case auth.OAuth2Identity:
//	}
type Identity interface {
	identity()
}

// LocalIdentity is a user who signed in with email and password.
type LocalIdentity struct {
	Email string
}

// OAuth2Identity is a user who signed in through an external identity
// provider. Provider is the registration name ("google"); Subject is the
// provider's stable user id and duplicates Claims.Subject.
type OAuth2Identity struct {
	Provider string
	Subject  string
	Claims   Claims
}

func (LocalIdentity) identity()  {}
func (OAuth2Identity) identity() {}

// Claims is the subset of the provider's userinfo response the application
// consumes. The JSON names follow OpenID Connect.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}
