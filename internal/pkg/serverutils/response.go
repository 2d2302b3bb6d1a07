package serverutils

import (
	"errors"

	"ai-slidegen-be/pkg/pipeline"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type ApiResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) ApiResponse {
	return ApiResponse{Message: message, Data: data}
}

var validate = validator.New()

// ValidateRequest runs struct-tag validation on a parsed request body.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// ErrorHandlerMiddleware maps pipeline errors onto HTTP status codes so
// controllers can simply return them.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(fiber.Map{"message": fiberErr.Message})
		}

		var precondition *pipeline.PreconditionError
		var schema *pipeline.SchemaError
		switch {
		case errors.As(err, &precondition):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": precondition.Error(),
				"status":  precondition.Status,
			})
		case errors.Is(err, pipeline.ErrSessionNotFound), errors.Is(err, pipeline.ErrSectionNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, pipeline.ErrStaleCheckpoint):
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
		case errors.As(err, &schema):
			return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message":    schema.Error(),
				"violations": schema.Violations,
			})
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}
