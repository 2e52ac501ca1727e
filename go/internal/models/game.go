package models

// Variant is the game type a session is created for. A session keeps its
// variant for its whole lifetime.
type Variant string

const (
	VariantVoting  Variant = "never-have-i-ever"
	VariantJudging Variant = "cards-against-humanity"
)

// ParseVariant maps the connection's "playing" parameter onto a Variant.
func ParseVariant(s string) (Variant, bool) {
	switch v := Variant(s); v {
	case VariantVoting, VariantJudging:
		return v, true
	default:
		return "", false
	}
}

func (v Variant) String() string {
	return string(v)
}
