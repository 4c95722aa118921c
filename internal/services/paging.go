package services

const (
	// DefaultPageSize applies when a listing does not ask for a limit
	DefaultPageSize = 50
	// MaxPageSize caps every listing
	MaxPageSize = 100
)

// Page is a limit/offset window
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the window into the supported range
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
