package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"offerapi/internal/apperr"
	"offerapi/internal/auth"
	"offerapi/internal/etag"
	"offerapi/internal/http/middleware"
	"offerapi/internal/model"
	"offerapi/internal/service"
	serviceMocks "offerapi/internal/service/mocks"
)

const testUserID = "user_1"

// asUser injects the authenticated user the way middleware.Auth would,
// letting handlers be tested without real tokens.
func asUser(id string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.UserIDLocalKey, id)
		return c.Next()
	}
}

func enrichedOffer(id string) *service.EnrichedOffer {
	o := &model.Offer{
		ID:             id,
		OwnerID:        testUserID,
		Title:          "Summer sale",
		Content:        map[string]any{"discount": float64(20)},
		Status:         model.StatusDraft,
		CurrentVersion: 1,
		TotalVersions:  1,
	}
	o.ETag = etag.ForOffer(o.Title, o.Content, string(o.Status))
	return &service.EnrichedOffer{
		Offer:   o,
		Version: o.CurrentVersion,
		VersionInfo: service.VersionInfo{
			Current:  o.CurrentVersion,
			Total:    o.TotalVersions,
			IsLatest: true,
		},
	}
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})

	t.Run("nil db is healthy", func(t *testing.T) {
		fileApp := fiber.New()
		fileApp.Get("/health", HealthCheck(nil))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := fileApp.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListOffers(t *testing.T) {
	mockSvc := new(serviceMocks.MockOfferService)
	app := fiber.New()
	app.Get("/offers", asUser(testUserID), ListOffers(mockSvc))

	expected := &service.ListResult{
		Offers: []service.OfferSummary{{ID: uuid.NewString(), Title: "Summer sale", Status: model.StatusDraft, Version: 1}},
		Total:  1,
		Limit:  50,
		Offset: 0,
	}

	t.Run("success with etag", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, testUserID, service.ListOptions{Limit: 50}).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Etag"))

		var result service.ListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Offers, 1)
		assert.Equal(t, 1, result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("if-none-match hit returns 304", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, testUserID, service.ListOptions{Limit: 50}).Return(expected, nil).Once()

		listTag, err := etag.Generate(expected)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/offers", nil)
		req.Header.Set("If-None-Match", listTag)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/offers?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
	})

	t.Run("validation error from service", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, testUserID, mock.Anything).Return(nil, apperr.Validation(`invalid status "bogus"`)).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers?status=bogus", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestCreateOffer(t *testing.T) {
	mockSvc := new(serviceMocks.MockOfferService)
	app := fiber.New()
	app.Post("/offers", asUser(testUserID), CreateOffer(mockSvc))

	t.Run("success", func(t *testing.T) {
		expected := enrichedOffer(uuid.NewString())
		mockSvc.On("Create", mock.Anything, testUserID, mock.Anything).Return(expected, nil).Once()

		body, _ := json.Marshal(map[string]any{"title": "Summer sale", "content": map[string]any{"discount": 20}})
		req := httptest.NewRequest(http.MethodPost, "/offers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, expected.ETag, resp.Header.Get("Etag"))

		var result service.EnrichedOffer
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, expected.ID, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("validation error", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, testUserID, mock.Anything).Return(nil, apperr.Validation("title is required")).Once()

		body, _ := json.Marshal(map[string]any{"content": map[string]any{}})
		req := httptest.NewRequest(http.MethodPost, "/offers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "VALIDATION_ERROR", res.Error.Code)
		assert.Equal(t, "title is required", res.Error.Message)
		mockSvc.AssertExpectations(t)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/offers", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_BODY", res.Error.Code)
	})
}

func TestGetOffer(t *testing.T) {
	mockSvc := new(serviceMocks.MockOfferService)
	app := fiber.New()
	app.Get("/offers/:id", asUser(testUserID), GetOffer(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		expected := enrichedOffer(id)
		mockSvc.On("Get", mock.Anything, id, testUserID).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, expected.ETag, resp.Header.Get("Etag"))

		var result service.EnrichedOffer
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("if-none-match hit returns 304", func(t *testing.T) {
		id := uuid.NewString()
		expected := enrichedOffer(id)
		mockSvc.On("Get", mock.Anything, id, testUserID).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers/"+id, nil)
		req.Header.Set("If-None-Match", expected.ETag)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
		assert.Equal(t, expected.ETag, resp.Header.Get("Etag"))
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Get", mock.Anything, id, testUserID).Return(nil, apperr.NotFound("offer not found")).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Get", mock.Anything, id, testUserID).Return(nil, apperr.Internal(errors.New("db error"))).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "internal server error", res.Error.Message)
		mockSvc.AssertExpectations(t)
	})
}

func TestUpdateOffer(t *testing.T) {
	mockSvc := new(serviceMocks.MockOfferService)
	app := fiber.New()
	app.Put("/offers/:id", asUser(testUserID), UpdateOffer(mockSvc))

	validBody, _ := json.Marshal(map[string]any{"title": "Winter sale", "content": map[string]any{"discount": 30}})

	t.Run("missing if-match", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/offers/"+uuid.NewString(), bytes.NewReader(validBody))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "PRECONDITION_REQUIRED", res.Error.Code)
		assert.Equal(t, "If-Match header is required for updates", res.Error.Message)
	})

	t.Run("stale etag returns 409 with resolution options", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Update", mock.Anything, id, testUserID, mock.Anything, `"deadbeef"`).
			Return(nil, apperr.Conflict("offer was modified by another user")).Once()

		req := httptest.NewRequest(http.MethodPut, "/offers/"+id, bytes.NewReader(validBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("If-Match", `"deadbeef"`)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "CONFLICT", res.Error.Code)
		assert.Equal(t, []string{"overwrite", "create_version", "view_changes"}, res.Error.ResolutionOptions)
		mockSvc.AssertExpectations(t)
	})

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		expected := enrichedOffer(id)
		mockSvc.On("Update", mock.Anything, id, testUserID, mock.Anything, expected.ETag).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodPut, "/offers/"+id, bytes.NewReader(validBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("If-Match", expected.ETag)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, expected.ETag, resp.Header.Get("Etag"))
		mockSvc.AssertExpectations(t)
	})
}

func TestDeleteOffer(t *testing.T) {
	mockSvc := new(serviceMocks.MockOfferService)
	app := fiber.New()
	app.Delete("/offers/:id", asUser(testUserID), DeleteOffer(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id, testUserID).Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/offers/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id, testUserID).Return(apperr.NotFound("offer not found")).Once()

		req := httptest.NewRequest(http.MethodDelete, "/offers/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestVersionEndpoints(t *testing.T) {
	mockSvc := new(serviceMocks.MockOfferService)
	app := fiber.New()
	grp := app.Group("/offers", asUser(testUserID))
	grp.Get("/:id/versions", ListVersions(mockSvc))
	grp.Post("/:id/versions", CreateVersion(mockSvc))
	grp.Get("/:id/versions/:n", GetVersion(mockSvc))
	grp.Post("/:id/versions/:n/restore", RestoreVersion(mockSvc))
	grp.Post("/:id/versions/:n/switch", SwitchVersion(mockSvc))
	grp.Post("/:id/versions/:n/publish", PublishVersion(mockSvc))
	grp.Delete("/:id/versions/:n/publish", UnpublishVersion(mockSvc))

	id := uuid.NewString()

	t.Run("list versions", func(t *testing.T) {
		entries := []service.VersionEntry{
			{Version: 2, ChangeType: model.ChangeManual, IsCurrent: true},
			{Version: 1, ChangeType: model.ChangeManual},
		}
		mockSvc.On("GetVersions", mock.Anything, id, testUserID).Return(entries, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers/"+id+"/versions", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Versions []service.VersionEntry `json:"versions"`
			Total    int                    `json:"total"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Len(t, body.Versions, 2)
		assert.Equal(t, 2, body.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("create version", func(t *testing.T) {
		summary := &service.VersionSummary{Version: 3, Description: "checkpoint", ChangeType: model.ChangeManual}
		mockSvc.On("CreateVersion", mock.Anything, id, testUserID, "checkpoint").Return(summary, nil).Once()

		body, _ := json.Marshal(map[string]string{"description": "checkpoint"})
		req := httptest.NewRequest(http.MethodPost, "/offers/"+id+"/versions", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result service.VersionSummary
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, 3, result.Version)
		mockSvc.AssertExpectations(t)
	})

	t.Run("get version invalid number", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/offers/"+id+"/versions/abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_VERSION", res.Error.Code)
	})

	t.Run("get version", func(t *testing.T) {
		v := &model.Version{ID: uuid.NewString(), OfferID: id, Version: 2, Title: "Summer sale"}
		mockSvc.On("GetVersion", mock.Anything, id, 2, testUserID).Return(v, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers/"+id+"/versions/2", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("restore defaults to no backup", func(t *testing.T) {
		res := &service.RestoreResult{RestoredToVersion: 2}
		mockSvc.On("RestoreVersion", mock.Anything, id, 2, testUserID, false).Return(res, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/offers/"+id+"/versions/2/restore", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.RestoreResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, 2, result.RestoredToVersion)
		assert.Nil(t, result.BackupVersion)
		mockSvc.AssertExpectations(t)
	})

	t.Run("restore with backup", func(t *testing.T) {
		backup := 4
		res := &service.RestoreResult{RestoredToVersion: 2, BackupVersion: &backup}
		mockSvc.On("RestoreVersion", mock.Anything, id, 2, testUserID, true).Return(res, nil).Once()

		body, _ := json.Marshal(map[string]bool{"createBackupVersion": true})
		req := httptest.NewRequest(http.MethodPost, "/offers/"+id+"/versions/2/restore", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.RestoreResult
		json.NewDecoder(resp.Body).Decode(&result)
		require.NotNil(t, result.BackupVersion)
		assert.Equal(t, 4, *result.BackupVersion)
		mockSvc.AssertExpectations(t)
	})

	t.Run("switch returns recomputed etag", func(t *testing.T) {
		expected := enrichedOffer(id)
		mockSvc.On("SwitchToVersion", mock.Anything, id, 1, testUserID).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/offers/"+id+"/versions/1/switch", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, expected.ETag, resp.Header.Get("Etag"))
		mockSvc.AssertExpectations(t)
	})

	t.Run("publish", func(t *testing.T) {
		expected := enrichedOffer(id)
		mockSvc.On("PublishVersion", mock.Anything, id, 1, testUserID).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/offers/"+id+"/versions/1/publish", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("unpublish", func(t *testing.T) {
		expected := enrichedOffer(id)
		mockSvc.On("UnpublishVersion", mock.Anything, id, 1, testUserID).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/offers/"+id+"/versions/1/publish", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})
	app.Use(middleware.RequestID())

	mockSvc := new(serviceMocks.MockOfferService)
	RegisterRoutes(app, nil, auth.NewService(nil), mockSvc)

	t.Run("offers requires auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/offers", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "UNAUTHORIZED", res.Error.Code)
		assert.Equal(t, "authorization token required", res.Error.Message)
		assert.NotEmpty(t, res.RequestID)
	})

	t.Run("authenticated request reaches service", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, testUserID, mock.Anything).
			Return(&service.ListResult{Offers: []service.OfferSummary{}, Limit: 50}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/offers", nil)
		req.Header.Set("Authorization", "Bearer token_user1")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		// Health endpoint only allows GET
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})
}
