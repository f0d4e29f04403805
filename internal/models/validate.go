package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate проверяет теги validate у сущности
func Validate(entity any) error {
	if err := validate.Struct(entity); err != nil {
		return fmt.Errorf("invalid %T: %w", entity, err)
	}
	return nil
}
