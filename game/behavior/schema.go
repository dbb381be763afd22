package behavior

import "github.com/invopop/jsonschema"

// Schema describes the catalog file format for editors and CI checks.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(new(File))
	schema.Title = "Desktop Pet Behavior Catalog"
	schema.Description = "Behaviors registered after the built-ins at startup"
	return schema
}
