package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service layer errors onto the API error codes.
// NOT_YOUR_TURN is deliberately a separate type from the permission denial so
// clients can tell "no access" apart from "not yet your turn".
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(services.CodeValidation).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsNotYourTurn(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType(services.CodeNotYourTurn).
			WithDetail("your approval step has not been activated yet")

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case services.IsPermissionError(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType(services.CodePermission).
			WithDetail("you do not have access to this request")

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case services.IsConflictError(err), persistence.IsStaleStatus(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType(services.CodeStaleState).
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsRequestNotFound(err):
		return notFoundType(c, "request not found")

	case persistence.IsStepNotFound(err):
		return notFoundType(c, "request step not found")

	case persistence.IsDefinitionNotFound(err):
		return notFoundType(c, "workflow definition not found")

	case persistence.IsArchiveNotFound(err):
		return notFoundType(c, "archived document not found")

	default:
		// Log-worthy, but never expose internals to the caller.
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}

func notFoundType(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(services.CodeNotFound).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}
