package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName holds indexed units when Weaviate is the similarity index.
const ClassName = "TextbookUnit"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func unitProperties() []*models.Property {
	return []*models.Property{
		{Name: "text", DataType: []string{"text"}},
		{Name: "sourceId", DataType: []string{"string"}}, // exact match for deletes
		{Name: "sequenceIndex", DataType: []string{"int"}},
		{Name: "kind", DataType: []string{"string"}},
		{Name: "sourceLength", DataType: []string{"int"}},
		{Name: "position", DataType: []string{"int"}},
		{Name: "totalUnits", DataType: []string{"int"}},
	}
}

// EnsureSchema creates the unit class with cosine distance and no vectorizer,
// or adds any properties missing from an existing class.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := unitProperties()

	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:             ClassName,
			Description:       "A segmented unit of a textbook chapter",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
			Properties:        properties,
		})
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}
