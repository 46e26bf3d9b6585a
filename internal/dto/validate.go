package dto

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"TrainAI/internal/apperr"
	"TrainAI/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidation installs the custom tags and reports field names by
// their json/form/uri tag. It runs once per process.
func RegisterValidation() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("uploadid", func(fl validator.FieldLevel) bool {
			return utils.ValidUploadID(fl.Field().String())
		})
		_ = v.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
			return utils.ValidSessionID(fl.Field().String())
		})
	})
}

func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form", "uri"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return fld.Name
}

func BindJSON(c *gin.Context, req any) error {
	RegisterValidation()
	return translate(c.ShouldBindJSON(req))
}

func BindForm(c *gin.Context, req any) error {
	RegisterValidation()
	return translate(c.ShouldBind(req))
}

func BindQuery(c *gin.Context, req any) error {
	RegisterValidation()
	return translate(c.ShouldBindQuery(req))
}

func BindURI(c *gin.Context, req any) error {
	RegisterValidation()
	return translate(c.ShouldBindUri(req))
}

// translate turns binding failures into validation errors with readable messages.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.SizeLimitf("request body exceeds %d bytes", tooLarge.Limit)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.Validationf("%s", describe(verrs[0]))
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return apperr.Validationf("malformed JSON body")
	case errors.As(err, &typeErr):
		return apperr.Validationf("%s has the wrong type", typeErr.Field)
	}
	return apperr.Validationf("invalid request: %v", err)
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "uploadid":
		return fmt.Sprintf("%s must be 1-128 characters of letters, digits, '-' or '_'", field)
	case "sessionid":
		return fmt.Sprintf("%s is malformed", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
