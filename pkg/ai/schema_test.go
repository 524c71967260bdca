package ai

import (
	"testing"

	"github.com/invopop/jsonschema"
)

func TestGenerateSchema(t *testing.T) {
	byValue := GenerateSchema(topicsAnswer{})
	byPointer := GenerateSchema(&topicsAnswer{})
	if byValue != byPointer {
		t.Error("GenerateSchema() returned different schemas for T and *T")
	}

	s, ok := byValue.(*jsonschema.Schema)
	if !ok {
		t.Fatalf("GenerateSchema() = %T, want *jsonschema.Schema", byValue)
	}
	if _, ok := s.Properties.Get("topics"); !ok {
		t.Error("schema has no topics property")
	}
}
