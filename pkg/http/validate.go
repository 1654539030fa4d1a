package http

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var (
	// Exchange-style symbols: BTC-USD, ^GSPC, GC=F, BRK.B.
	tickerPattern = regexp.MustCompile(`^[A-Za-z0-9^=.\-]{1,20}$`)
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(fieldName)
	_ = v.RegisterValidation("ticker", matches(tickerPattern))
	_ = v.RegisterValidation("resource_id", matches(idPattern))
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// fieldName reports the name a client used: json, query or path.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "query", "param"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// ReadAndValidateRequest binds the request, applies `default` tags and runs
// validator rules. It returns nil or a []ValidationError payload.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return bindErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return bindErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validationErrors(err)
	}
	return nil
}

func bindErrors(err error) []ValidationError {
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprintf("%v", he.Message)
	}
	return []ValidationError{{Code: "ERR_MALFORMED_REQUEST", Message: msg}}
}

func validationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: message(fe),
			Params:  params(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	field, p := fe.Field(), fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "ticker":
		return field + " must be a ticker symbol such as BTC-USD or GLD"
	case "resource_id":
		return field + " may contain only letters, digits, '.', '_' and '-' (at most 64)"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(p, " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, p, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, p, unit)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, p)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, p)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, p)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, p)
	}
	return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
}

func params(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "gt", "lt":
		return map[string]interface{}{"value": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	}
	return nil
}
