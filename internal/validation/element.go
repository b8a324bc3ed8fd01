package validation

import (
	"fmt"
	"regexp"

	"github.com/iudanet/meetsync/internal/models"
)

// CollectionPattern формат имени коллекции: "app/model"
var CollectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*/[a-z][a-z0-9_-]*$`)

// ValidateCollection проверяет имя коллекции
func ValidateCollection(collection string) error {
	if collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}
	if !CollectionPattern.MatchString(collection) {
		return fmt.Errorf("collection %q must look like app/model", collection)
	}
	return nil
}

// ValidateElementID проверяет строку вида "collection:id"
func ValidateElementID(elementID string) error {
	collection, id, err := models.ParseElementID(elementID)
	if err != nil {
		return err
	}
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("element id must be positive, got %d", id)
	}
	return nil
}
