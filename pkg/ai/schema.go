package ai

import (
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

// GenerateSchema reflects the JSON schema of value's type for structured
// output. Schemas are cached per type since every analysis cycle asks for
// the same handful.
func GenerateSchema(value any) any {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := schemaCache.Load(t); ok {
		return s
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := reflector.Reflect(reflect.New(t).Interface())
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual
}
