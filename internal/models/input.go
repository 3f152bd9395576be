package models

// InputKind is the classification of user input
type InputKind string

const (
	InputKindTransaction InputKind = "transaction"
	InputKindPackage     InputKind = "package"
	InputKindUnknown     InputKind = "unknown"
)

// InputReference is a classified identifier. Unknown references carry no ID.
type InputReference struct {
	Kind InputKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// HasID reports whether the reference names something that can be fetched
func (r InputReference) HasID() bool {
	return r.Kind != InputKindUnknown && r.ID != ""
}
