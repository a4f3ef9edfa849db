package docref

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Well-known document types.
const (
	TypeDataSource = "DataSource"
	TypePipeline   = "Pipeline"
	TypeDictionary = "Dictionary"
	TypeFolder     = "Folder"
)

// DocRef references a document held by the doc store.
type DocRef struct {
	Type string `json:"type" yaml:"type"`
	UUID string `json:"uuid" yaml:"uuid"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// New creates a DocRef with a fresh random UUID.
func New(docType, name string) DocRef {
	return DocRef{Type: docType, UUID: uuid.NewString(), Name: name}
}

// Parse validates the UUID and returns a DocRef.
func Parse(docType, id, name string) (DocRef, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return DocRef{}, fmt.Errorf("invalid %s uuid %q: %w", docType, id, err)
	}
	return DocRef{Type: docType, UUID: u.String(), Name: name}, nil
}

// IsZero reports whether the reference has no UUID.
func (d DocRef) IsZero() bool { return d.UUID == "" }

// SameDoc compares references by UUID only.
func (d DocRef) SameDoc(other DocRef) bool {
	return d.UUID != "" && strings.EqualFold(d.UUID, other.UUID)
}

func (d DocRef) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s %q (%s)", d.Type, d.Name, d.UUID)
	}
	return fmt.Sprintf("%s (%s)", d.Type, d.UUID)
}
