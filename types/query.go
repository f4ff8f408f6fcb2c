package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

// CheckParams is the body of a conflict check that does not upload anything.
type CheckParams struct {
	Text      string   `json:"text" validate:"required"`
	Name      string   `json:"name"`
	Threshold *float64 `json:"threshold" validate:"omitempty,gte=0,lte=1"`
}

// DiagnoseParams is the body of a diagnostics run.
type DiagnoseParams struct {
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold" validate:"gte=0,lte=1"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *CheckParams) Validate() map[string]string {
	return structErrors(params)
}

func (params *DiagnoseParams) Validate() map[string]string {
	return structErrors(params)
}

func structErrors(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}
