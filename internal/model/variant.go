package model

import "github.com/rotisserie/eris"

// Variant names a kind of source document, or the composite "full" request.
type Variant string

const (
	VariantOverview Variant = "overview"
	VariantAnalyst  Variant = "analyst"
	VariantEarnings Variant = "earnings"
	VariantFull     Variant = "full"
)

// ParseVariant validates a requested variant. Only overview and full can be
// requested; analyst and earnings are sub-documents.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantOverview, VariantFull:
		return v, nil
	default:
		return "", eris.Errorf("model: unsupported variant %q (want overview or full)", s)
	}
}

// Required returns the sub-documents a requested variant depends on, in
// fetch order.
func (v Variant) Required() []Variant {
	switch v {
	case VariantFull:
		return []Variant{VariantOverview, VariantAnalyst, VariantEarnings}
	case VariantOverview:
		return []Variant{VariantOverview, VariantAnalyst}
	default:
		return []Variant{v}
	}
}
