package handler

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"offerapi/internal/auth"
	"offerapi/internal/etag"
	"offerapi/internal/http/middleware"
	"offerapi/internal/service"
)

// HealthCheck reports readiness by pinging the database. A nil db (file
// backend) is always healthy.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness check with no dependencies.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// versionParam parses the :n route segment. Anything that is not a positive
// integer is a client error.
func versionParam(c *fiber.Ctx) (int, bool) {
	n, err := strconv.Atoi(c.Params("n"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ifNoneMatchHit reports whether the request's If-None-Match header matches
// the current fingerprint.
func ifNoneMatchHit(c *fiber.Ctx, current string) bool {
	return etag.Compare(c.Get(fiber.HeaderIfNoneMatch), current)
}

// ListOffers returns the caller's offers with paging and sorting, plus a
// fingerprint over the whole listing for cheap polling.
func ListOffers(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "50"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), middleware.UserID(c), service.ListOptions{
			Status:  c.Query("status"),
			Limit:   limit,
			Offset:  offset,
			OrderBy: c.Query("orderBy"),
			Order:   c.Query("order"),
		})
		if err != nil {
			return writeAppError(c, err)
		}

		listTag, err := etag.Generate(res)
		if err != nil {
			return writeAppError(c, err)
		}
		if ifNoneMatchHit(c, listTag) {
			c.Set(fiber.HeaderETag, listTag)
			return c.SendStatus(fiber.StatusNotModified)
		}
		c.Set(fiber.HeaderETag, listTag)
		return c.JSON(res)
	}
}

// CreateOffer creates an offer owned by the caller and returns its first
// fingerprint in the ETag header.
func CreateOffer(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.OfferInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		offer, err := svc.Create(c.UserContext(), middleware.UserID(c), in)
		if err != nil {
			return writeAppError(c, err)
		}

		c.Set(fiber.HeaderETag, offer.ETag)
		return c.Status(fiber.StatusCreated).JSON(offer)
	}
}

// GetOffer returns a single offer. If-None-Match against the stored
// fingerprint short-circuits to 304.
func GetOffer(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offer, err := svc.Get(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return writeAppError(c, err)
		}

		c.Set(fiber.HeaderETag, offer.ETag)
		if ifNoneMatchHit(c, offer.ETag) {
			return c.SendStatus(fiber.StatusNotModified)
		}
		return c.JSON(offer)
	}
}

// UpdateOffer replaces an offer's content under the optimistic-concurrency
// contract: the If-Match header must carry a current fingerprint or the
// write is rejected.
func UpdateOffer(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ifMatch := c.Get(fiber.HeaderIfMatch)
		if ifMatch == "" {
			return writeError(c, fiber.StatusPreconditionFailed, "PRECONDITION_REQUIRED", "If-Match header is required for updates")
		}

		var in service.UpdateInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		offer, err := svc.Update(c.UserContext(), c.Params("id"), middleware.UserID(c), in, ifMatch)
		if err != nil {
			return writeAppError(c, err)
		}

		c.Set(fiber.HeaderETag, offer.ETag)
		return c.JSON(offer)
	}
}

// DeleteOffer removes an offer and its whole version history.
func DeleteOffer(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Delete(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
			return writeAppError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListVersions returns the offer's version history, newest first.
func ListVersions(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries, err := svc.GetVersions(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(fiber.Map{"versions": entries, "total": len(entries)})
	}
}

type createVersionRequest struct {
	Description string `json:"description"`
}

// CreateVersion checkpoints the offer's current state as a new version.
func CreateVersion(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in createVersionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&in); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
			}
		}

		summary, err := svc.CreateVersion(c.UserContext(), c.Params("id"), middleware.UserID(c), in.Description)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(summary)
	}
}

// GetVersion returns a single historical snapshot.
func GetVersion(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, ok := versionParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer")
		}

		version, err := svc.GetVersion(c.UserContext(), c.Params("id"), n, middleware.UserID(c))
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(version)
	}
}

type restoreRequest struct {
	CreateBackupVersion *bool `json:"createBackupVersion"`
}

// RestoreVersion overwrites the offer's state from a historical snapshot.
// Callers opt into forking an automatic backup first via createBackupVersion.
func RestoreVersion(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, ok := versionParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer")
		}

		var in restoreRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&in); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
			}
		}
		createBackup := false
		if in.CreateBackupVersion != nil {
			createBackup = *in.CreateBackupVersion
		}

		res, err := svc.RestoreVersion(c.UserContext(), c.Params("id"), n, middleware.UserID(c), createBackup)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(res)
	}
}

// SwitchVersion repoints the offer at a historical version without forking.
func SwitchVersion(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, ok := versionParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer")
		}

		offer, err := svc.SwitchToVersion(c.UserContext(), c.Params("id"), n, middleware.UserID(c))
		if err != nil {
			return writeAppError(c, err)
		}

		c.Set(fiber.HeaderETag, offer.ETag)
		return c.JSON(offer)
	}
}

// PublishVersion marks a version as the offer's public one and exports its
// snapshot.
func PublishVersion(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, ok := versionParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer")
		}

		offer, err := svc.PublishVersion(c.UserContext(), c.Params("id"), n, middleware.UserID(c))
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(offer)
	}
}

// UnpublishVersion withdraws a published version.
func UnpublishVersion(svc service.OfferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, ok := versionParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer")
		}

		offer, err := svc.UnpublishVersion(c.UserContext(), c.Params("id"), n, middleware.UserID(c))
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(offer)
	}
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app. Everything
// under /offers requires a bearer token.
func RegisterRoutes(app *fiber.App, db *sql.DB, tokens *auth.Service, offerSvc service.OfferService) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	offers := app.Group("/offers", middleware.Auth(tokens))
	offers.Get("/", ListOffers(offerSvc))
	offers.Post("/", CreateOffer(offerSvc))
	offers.Get("/:id", GetOffer(offerSvc))
	offers.Put("/:id", UpdateOffer(offerSvc))
	offers.Delete("/:id", DeleteOffer(offerSvc))

	offers.Get("/:id/versions", ListVersions(offerSvc))
	offers.Post("/:id/versions", CreateVersion(offerSvc))
	offers.Get("/:id/versions/:n", GetVersion(offerSvc))
	offers.Post("/:id/versions/:n/restore", RestoreVersion(offerSvc))
	offers.Post("/:id/versions/:n/switch", SwitchVersion(offerSvc))
	offers.Post("/:id/versions/:n/publish", PublishVersion(offerSvc))
	offers.Delete("/:id/versions/:n/publish", UnpublishVersion(offerSvc))
}
