// handlers/import_routes.go
package handlers

import (
	"errors"
	"strconv"

	"score-ingest-system/services"

	"github.com/gofiber/fiber/v2"
)

// ImportRequest is the POST /imports body.
type ImportRequest struct {
	UserID     int                   `json:"user_id"`
	UserIntent bool                  `json:"user_intent"`
	ImportType string                `json:"import_type"`
	Game       string                `json:"game"`
	Payloads   []services.RawPayload `json:"payloads"`
}

func SetupImportRoutes(app *fiber.App, importer *services.ImportService, reverter *services.RevertService, orphans *services.OrphanService) {
	app.Post("/imports", func(c *fiber.Ctx) error {
		var req ImportRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		if req.UserID <= 0 || req.Game == "" || req.ImportType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id, game and import_type are required",
			})
		}

		result, err := importer.Import(c.Context(), req.UserID, req.UserIntent, req.ImportType, req.Game, req.Payloads)
		if err != nil {
			if errors.Is(err, services.ErrImportRecordWrite) {
				// Scores are durable; only the reversal record is missing.
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error":  "scores imported but import record could not be written",
					"result": result,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "import failed",
				"cause": err.Error(),
			})
		}

		return c.Status(fiber.StatusCreated).JSON(result)
	})

	app.Get("/imports/:importID", func(c *fiber.Ctx) error {
		imp, err := reverter.GetImport(c.Context(), c.Params("importID"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "DB error fetching import",
				"cause": err.Error(),
			})
		}
		if imp == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "import not found",
			})
		}
		return c.JSON(imp)
	})

	app.Delete("/imports/:importID", func(c *fiber.Ctx) error {
		imp, err := reverter.GetImport(c.Context(), c.Params("importID"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "DB error fetching import",
				"cause": err.Error(),
			})
		}
		if imp == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "import not found",
			})
		}

		// Reverting someone else's import needs an explicit confirmation of
		// whose data is being destroyed.
		if q := c.Query("user_id"); q != "" {
			userID, convErr := strconv.Atoi(q)
			if convErr != nil || userID != imp.UserID {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "user_id does not match the import's owner",
				})
			}
		}

		if err := reverter.RevertImport(c.Context(), imp); err != nil {
			if errors.Is(err, services.ErrImportRecordDelete) {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "scores reverted but import record could not be deleted",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "revert failed",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{"reverted": imp.ImportID})
	})

	// Admin escape hatch: admit a queued orphan chart regardless of how many
	// users have reported it.
	app.Post("/orphans/resolve", func(c *fiber.Ctx) error {
		var req struct {
			MatchKey string `json:"match_key"`
		}
		if err := c.BodyParser(&req); err != nil || req.MatchKey == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "match_key is required",
			})
		}

		chart, err := orphans.ForceResolve(c.Context(), req.MatchKey)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "orphan resolution failed",
				"cause": err.Error(),
			})
		}
		if chart == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "no orphan chart queued under that match key",
			})
		}

		return c.JSON(chart)
	})
}
