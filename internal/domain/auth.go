package domain

// Principal is the resolved caller identity. UserID is an opaque scoping key.
type Principal struct {
	UserID string
	Method string
}
