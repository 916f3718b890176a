package models

// Credential is the opaque bearer token issued by the remote API. Empty means none.
type Credential string

// Session pairs the credential with the profile of whoever holds it.
// A credential without a profile is the degraded window between token receipt
// and profile resolution.
type Session struct {
	Credential Credential
	Profile    *UserProfile
}

// Authenticated reports whether a credential is present, independent of the profile
func (s Session) Authenticated() bool {
	return s.Credential != ""
}

// Degraded reports whether the credential is present but the profile is not
func (s Session) Degraded() bool {
	return s.Credential != "" && s.Profile == nil
}

// Roles returns the session's roles, or an empty set when nobody is signed in
func (s Session) Roles() RoleSet {
	if s.Profile == nil || s.Profile.Roles == nil {
		return NewRoleSet()
	}
	return s.Profile.Roles
}
