// Package schema declares the shape of structured model output and checks
// decoded JSON values against it.
//
// The shape follows the structured-output schema of the Gemini API so it
// converts one to one into either Google SDK.
package schema

// Type is the JSON type of a schema node.
type Type string

const (
	TypeObject  Type = "OBJECT"
	TypeArray   Type = "ARRAY"
	TypeString  Type = "STRING"
	TypeNumber  Type = "NUMBER"
	TypeInteger Type = "INTEGER"
	TypeBoolean Type = "BOOLEAN"
)

// Schema describes one value.
type Schema struct {
	// Type is the JSON type of the value.
	Type Type `json:"type"`

	// Description steers the model; it is not checked.
	Description string `json:"description,omitempty"`

	// Enum restricts a STRING to the listed values.
	Enum []string `json:"enum,omitempty"`

	// Properties lists the fields of an OBJECT.
	Properties map[string]*Schema `json:"properties,omitempty"`

	// Required names the OBJECT fields that must be present.
	Required []string `json:"required,omitempty"`

	// Items is the element schema of an ARRAY.
	Items *Schema `json:"items,omitempty"`

	// Nullable allows JSON null in place of the value.
	Nullable bool `json:"nullable,omitempty"`
}

// String returns a STRING schema.
func String(desc string) *Schema {
	return &Schema{Type: TypeString, Description: desc}
}

// Number returns a NUMBER schema.
func Number(desc string) *Schema {
	return &Schema{Type: TypeNumber, Description: desc}
}

// Integer returns an INTEGER schema.
func Integer(desc string) *Schema {
	return &Schema{Type: TypeInteger, Description: desc}
}

// Boolean returns a BOOLEAN schema.
func Boolean(desc string) *Schema {
	return &Schema{Type: TypeBoolean, Description: desc}
}

// Enum returns a STRING schema restricted to values.
func Enum(desc string, values ...string) *Schema {
	return &Schema{Type: TypeString, Description: desc, Enum: values}
}

// ArrayOf returns an ARRAY schema of items.
func ArrayOf(desc string, items *Schema) *Schema {
	return &Schema{Type: TypeArray, Description: desc, Items: items}
}

// Field is one named property of an object schema.
type Field struct {
	Name     string
	Schema   *Schema
	Optional bool
}

// Object returns an OBJECT schema. Fields are required unless marked optional.
func Object(desc string, fields ...Field) *Schema {
	s := &Schema{
		Type:        TypeObject,
		Description: desc,
		Properties:  make(map[string]*Schema, len(fields)),
	}
	for _, f := range fields {
		s.Properties[f.Name] = f.Schema
		if !f.Optional {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// Required is shorthand for a required Field.
func Required(name string, s *Schema) Field { return Field{Name: name, Schema: s} }

// Optional is shorthand for an optional Field.
func Optional(name string, s *Schema) Field { return Field{Name: name, Schema: s, Optional: true} }
