package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/iyhunko/products-crud/internal/model"
	"github.com/shopspring/decimal"
)

const (
	titleField     = "title"
	contentField   = "content"
	priceField     = "price"
	salePriceField = "sale_price"

	// NonFieldErrorsKey collects problems that do not belong to a single field.
	NonFieldErrorsKey = "non_field_errors"

	maxDecimalInput = 1000
)

const (
	msgRequired     = "This field is required."
	msgNull         = "This field may not be null."
	msgBlank        = "This field may not be blank."
	msgInvalidStr   = "Not a valid string."
	msgInvalidNum   = "A valid number is required."
	msgMaxLength    = "Ensure this field has no more than %s characters."
	msgMaxDigits    = "Ensure that there are no more than %s digits in total."
	msgMaxPlaces    = "Ensure that there are no more than %s decimal places."
	msgMaxWhole     = "Ensure that there are no more than %s digits before the decimal point."
	msgMaxStringLen = "Ensure that there are no more than %d characters."
)

// Payload is a decoded JSON object keyed by field name. Values are kept raw so
// numbers are never routed through float64.
type Payload map[string]json.RawMessage

// ParseError reports a request body that is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "JSON parse error - " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError lists every problem found in a payload, keyed by field name.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

// ParsePayload decodes a request body into a Payload. An empty body yields an
// empty Payload; a body that is valid JSON but not an object is a ValidationError.
func ParsePayload(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{}, nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &ParseError{Err: err}
	}

	if trimmed[0] != '{' {
		verr := &ValidationError{}
		verr.add(NonFieldErrorsKey, fmt.Sprintf("Invalid data. Expected a dictionary, but got %s.", jsonKind(trimmed)))
		return nil, verr
	}

	var payload Payload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, &ParseError{Err: err}
	}
	return payload, nil
}

func jsonKind(raw []byte) string {
	switch raw[0] {
	case '[':
		return "list"
	case '"':
		return "str"
	case 't', 'f':
		return "bool"
	case 'n':
		return "NoneType"
	default:
		if bytes.ContainsAny(raw, ".eE") {
			return "float"
		}
		return "int"
	}
}

// productFields holds the textual form of every field that survived decoding.
// Only the fields present in the payload are validated.
type productFields struct {
	Title     string `json:"title" validate:"required,max=120"`
	Price     string `json:"price" validate:"decimal,maxdigits=15,maxplaces=2,maxwhole=13"`
	SalePrice string `json:"sale_price" validate:"decimal,maxdigits=15,maxplaces=2,maxwhole=13"`
}

var structFieldNames = map[string]string{
	titleField:     "Title",
	priceField:     "Price",
	salePriceField: "SalePrice",
}

// productChanges is the validated, typed form of a payload.
type productChanges struct {
	title     *string
	content   *string
	price     *decimal.Decimal
	salePrice *decimal.NullDecimal
}

// apply copies every present change onto p and fills in the content default.
func (c productChanges) apply(p *model.Product) {
	if c.title != nil {
		p.Title = *c.title
	}
	if c.content != nil {
		p.Content = *c.content
	}
	if c.price != nil {
		p.Price = *c.price
	}
	if c.salePrice != nil {
		p.SalePrice = *c.salePrice
	}
	p.ApplyDefaults()
}

// payloadValidator turns payloads into product changes.
type payloadValidator struct {
	v *validator.Validate
}

// newPayloadValidator builds a validator with the decimal precision rules registered.
func newPayloadValidator() *payloadValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "decimal", isDecimal)
	mustRegister(v, "maxdigits", precisionRule(func(p precision) int { return p.digits }))
	mustRegister(v, "maxplaces", precisionRule(func(p precision) int { return p.places }))
	mustRegister(v, "maxwhole", precisionRule(func(p precision) int { return p.whole }))
	return &payloadValidator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

type precision struct {
	digits int
	places int
	whole  int
}

// precisionOf counts digits the way a NUMERIC(p, s) column sees the literal,
// keeping trailing zeros written by the client.
func precisionOf(d decimal.Decimal) precision {
	coefficient := d.Coefficient()
	n := len(coefficient.Abs(coefficient).String())
	exp := int(d.Exponent())

	switch {
	case exp >= 0:
		return precision{digits: n + exp, whole: n + exp}
	case n > -exp:
		return precision{digits: n, places: -exp, whole: n + exp}
	default:
		return precision{digits: -exp, places: -exp}
	}
}

func isDecimal(fl validator.FieldLevel) bool {
	_, err := decimal.NewFromString(fl.Field().String())
	return err == nil
}

func precisionRule(measure func(precision) int) validator.Func {
	return func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			// reported by the decimal rule
			return true
		}
		return measure(precisionOf(d)) <= limit
	}
}

// check validates a payload. With partial set only the fields present are
// checked; otherwise title and price must be present.
func (pv *payloadValidator) check(payload Payload, partial bool) (productChanges, error) {
	var (
		changes productChanges
		fields  productFields
		present []string
	)
	verr := &ValidationError{}

	if raw, ok := payload[titleField]; ok {
		s, msg := decodeString(raw, false)
		switch {
		case msg != "":
			verr.add(titleField, msg)
		default:
			fields.Title = s
			present = append(present, structFieldNames[titleField])
		}
	} else if !partial {
		verr.add(titleField, msgRequired)
	}

	if raw, ok := payload[contentField]; ok {
		s, msg := decodeString(raw, true)
		if msg != "" {
			verr.add(contentField, msg)
		} else {
			changes.content = &s
		}
	}

	if raw, ok := payload[priceField]; ok {
		s, isNull, msg := decodeNumber(raw)
		switch {
		case msg != "":
			verr.add(priceField, msg)
		case isNull:
			verr.add(priceField, msgNull)
		default:
			fields.Price = s
			present = append(present, structFieldNames[priceField])
		}
	} else if !partial {
		verr.add(priceField, msgRequired)
	}

	if raw, ok := payload[salePriceField]; ok {
		s, isNull, msg := decodeNumber(raw)
		switch {
		case msg != "":
			verr.add(salePriceField, msg)
		case isNull || s == "":
			changes.salePrice = &decimal.NullDecimal{}
		default:
			fields.SalePrice = s
			present = append(present, structFieldNames[salePriceField])
		}
	}

	if len(present) > 0 {
		if err := pv.v.StructPartial(fields, present...); err != nil {
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				return productChanges{}, fmt.Errorf("failed to validate payload: %w", err)
			}
			for _, fe := range fieldErrs {
				verr.add(fe.Field(), fieldMessage(fe))
			}
		}
	}

	if !verr.empty() {
		return productChanges{}, verr
	}

	for _, name := range present {
		switch name {
		case structFieldNames[titleField]:
			title := fields.Title
			changes.title = &title
		case structFieldNames[priceField]:
			price := decimal.RequireFromString(fields.Price)
			changes.price = &price
		case structFieldNames[salePriceField]:
			sale := decimal.NewNullDecimal(decimal.RequireFromString(fields.SalePrice))
			changes.salePrice = &sale
		}
	}

	return changes, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgBlank
	case "max":
		return fmt.Sprintf(msgMaxLength, fe.Param())
	case "decimal":
		return msgInvalidNum
	case "maxdigits":
		return fmt.Sprintf(msgMaxDigits, fe.Param())
	case "maxplaces":
		return fmt.Sprintf(msgMaxPlaces, fe.Param())
	case "maxwhole":
		return fmt.Sprintf(msgMaxWhole, fe.Param())
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}

// decodeString accepts JSON strings and numbers and trims surrounding whitespace.
// A null is only acceptable when nullable is set, in which case it decodes to "".
func decodeString(raw json.RawMessage, nullable bool) (string, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", msgInvalidStr
	}

	switch raw[0] {
	case 'n':
		if nullable {
			return "", ""
		}
		return "", msgNull
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", msgInvalidStr
		}
		return strings.TrimSpace(s), ""
	case '{', '[', 't', 'f':
		return "", msgInvalidStr
	default:
		return string(raw), ""
	}
}

// decodeNumber returns the literal text of a JSON number or numeric string.
// Strings are trimmed and both forms are capped at maxDecimalInput characters.
func decodeNumber(raw json.RawMessage) (string, bool, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false, msgInvalidNum
	}

	switch raw[0] {
	case 'n':
		return "", true, ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, msgInvalidNum
		}
		return checkNumberLength(strings.TrimSpace(s))
	case '{', '[', 't', 'f':
		return "", false, msgInvalidNum
	default:
		return checkNumberLength(string(raw))
	}
}

func checkNumberLength(s string) (string, bool, string) {
	if len(s) > maxDecimalInput {
		return "", false, fmt.Sprintf(msgMaxStringLen, maxDecimalInput)
	}
	return s, false, ""
}
