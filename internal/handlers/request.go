package handlers

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
)

var (
	errInvalidNumber = errors.New("invalid number")
	validate         = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	userIDValue := c.Locals("user_id")
	userIDStr, ok := userIDValue.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(userIDStr, 10, 64)
}

func parseSubject(c *fiber.Ctx) (services.Subject, error) {
	userID, err := parseUserID(c)
	if err != nil {
		return services.Subject{}, err
	}
	role, _ := c.Locals("role").(string)
	return services.NewSubject(userID, role), nil
}

func parseIDParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidNumber
	}
	return id, nil
}

func parseOptionalID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errInvalidNumber
	}
	return &id, nil
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseOptionalBody decodes the body only when one was sent, so actions like
// book and cancel accept an empty POST.
func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}

// validationResponse renders validator failures keyed by json field path.
func validationResponse(c *fiber.Ctx, err error) error {
	fields := map[string]string{}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fieldErr := range validationErrs {
			fields[fieldPath(fieldErr.Namespace())] = describeTag(fieldErr)
		}
	}

	return fieldsResponse(c, fields)
}

func fieldsResponse(c *fiber.Ctx, fields map[string]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "Validation failed",
		"fields": fields,
	})
}

// fieldPath drops the struct name validator puts in front of every namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describeTag(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fieldErr.Param() + " entries"
	case "gt":
		return "must be greater than " + fieldErr.Param()
	case "gte":
		return "must be at least " + fieldErr.Param()
	case "lte":
		return "must be at most " + fieldErr.Param()
	default:
		return "is invalid"
	}
}
