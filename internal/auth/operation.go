package auth

// Operation describes the access requirements of one API operation.
// The router keeps one Operation per route and every guard reads from it.
type Operation struct {
	// Name appears in access error messages, e.g. "messages.send"
	Name string

	// Public operations skip authentication entirely
	Public bool

	// Scopes an API key must hold, all of them
	Scopes []Scope

	// MinRole a JWT principal must hold on the target project. Empty means any member.
	MinRole Role

	// JWTOnly rejects API key principals (e.g. project creation)
	JWTOnly bool
}
