package httpx

import (
	"errors"
	"strconv"

	"wholesale-backend/internal/config"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ValidationError carries per-field failures to the ErrorHandler.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// ErrorHandler renders *fiber.Error as {"error": msg}. Anything else is
// logged and reported as a generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  ve.Error(),
			"fields": ve.Fields,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fe.Message,
		})
	}

	config.LogError(config.GetLogger(), "httpx", "ErrorHandler", c.Method()+" "+c.Path(), logrus.Fields{
		"request_id": c.Locals(CtxRequestIDKey),
	}, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Server error",
	})
}

var validate = validator.New()

// ParseBody decodes the request body and runs struct validation.
func ParseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &ValidationError{Fields: ValidationFields(verrs)}
		}
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}

func ValidationFields(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, ve := range verrs {
		fields[ve.Field()] = ve.Tag()
	}
	return fields
}

// ParamID reads a positive numeric route parameter. Malformed ids are
// reported as not found, the same as unknown ones.
func ParamID(c *fiber.Ctx, name, notFoundMsg string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusNotFound, notFoundMsg)
	}
	return uint(id), nil
}
