package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldError is one offending field in a rejected request body.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BindAndValidate binds the JSON body and applies the struct's validate tags
// on top of gin's binding tags. On failure it writes the 400 response itself
// and returns false.
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}

	err := validate.Struct(req)
	if err == nil {
		return true
	}

	var details []FieldError
	for _, fe := range err.(validator.ValidationErrors) {
		details = append(details, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation failed",
		"details": details,
	})
	return false
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return err.Field() + " must be a valid email address"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "gte":
		return err.Field() + " must be greater than or equal to " + err.Param()
	case "lte":
		return err.Field() + " must be less than or equal to " + err.Param()
	default:
		return err.Field() + " is invalid"
	}
}
