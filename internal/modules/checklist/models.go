// Package checklist manages collateral checklist state stored in CRM deal
// properties, with a local mirror for fast reads and recovery decoding for
// values mangled by rich-text editing.
package checklist

// State is the checklist payload persisted as a JSON string inside a deal
// property. CollateralType is a pointer so "not yet chosen" survives a
// round-trip as null rather than an empty string.
type State struct {
	CollateralType *string           `json:"collateralType"`
	ItemStatuses   map[string]string `json:"itemStatuses"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
	Version        int               `json:"version,omitempty"`
}
