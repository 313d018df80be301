package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/api/handlers"
	"github.com/hugh/medpocket/internal/api/middleware"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/testutil"
	"github.com/hugh/medpocket/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupReferenceTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)
	handler := handlers.NewReferenceHandler(tc.DB, util.Discard())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Get("/api/templates", handler.ListTemplates)
		r.Post("/api/templates", handler.CreateTemplate)
		r.Get("/api/entries", handler.ListEntries)
		r.Post("/api/entries", handler.CreateEntry)
		r.Get("/api/categories", handler.ListCategories)
		r.Get("/api/links", handler.ListLinks)
	})

	return r, tc
}

func TestReferenceHandler_Templates(t *testing.T) {
	router, tc := setupReferenceTestRouter(t)
	defer tc.Cleanup()

	require.NoError(t, tc.DB.Create(&models.Template{Name: "Discharge letter", Fields: []string{"diagnosis"}}).Error)
	require.NoError(t, tc.DB.Create(&models.Template{Name: "Cardio follow-up", Specialty: "cardiology", Fields: []string{}}).Error)

	t.Run("create", func(t *testing.T) {
		body := map[string]interface{}{
			"name":      "Antenatal visit",
			"specialty": "gynecology",
			"section":   "consultations",
			"content":   "Gestational age: {{ga}}",
			"fields":    []string{"ga", "bp"},
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", "/api/templates", body, tc.Token))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var created models.Template
		testutil.ParseJSONResponse(t, rr, &created)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, tc.User.ID, created.CreatedBy)
		assert.Equal(t, []string{"ga", "bp"}, created.Fields)
	})

	t.Run("create rejects unknown section", func(t *testing.T) {
		body := map[string]interface{}{"name": "x", "section": "astrology"}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", "/api/templates", body, tc.Token))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("list is shared across users", func(t *testing.T) {
		_, otherToken := tc.SecondUser(t)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/templates", nil, otherToken))
		require.Equal(t, http.StatusOK, rr.Code)

		var got []models.Template
		testutil.ParseJSONResponse(t, rr, &got)
		names := make([]string, len(got))
		for i, tpl := range got {
			names[i] = tpl.Name
		}
		assert.Equal(t, []string{"Antenatal visit", "Cardio follow-up", "Discharge letter"}, names)
	})

	t.Run("specialty keeps generic templates", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/templates?specialty=gynecology", nil, tc.Token))
		require.Equal(t, http.StatusOK, rr.Code)

		var got []models.Template
		testutil.ParseJSONResponse(t, rr, &got)
		require.Len(t, got, 2)
		assert.Equal(t, "Antenatal visit", got[0].Name)
		assert.Equal(t, "Discharge letter", got[1].Name)
	})
}

func TestReferenceHandler_Entries(t *testing.T) {
	router, tc := setupReferenceTestRouter(t)
	defer tc.Cleanup()

	template := models.Template{Name: "Antenatal visit", Fields: []string{"ga"}}
	require.NoError(t, tc.DB.Create(&template).Error)

	post := func(body interface{}, token string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", "/api/entries", body, token))
		return rr
	}

	t.Run("with template", func(t *testing.T) {
		rr := post(map[string]interface{}{
			"template_id": template.ID.String(),
			"title":       "Visit 1",
			"data":        map[string]string{"ga": "12w"},
		}, tc.Token)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var entry models.Entry
		testutil.ParseJSONResponse(t, rr, &entry)
		require.NotNil(t, entry.TemplateID)
		assert.Equal(t, template.ID, *entry.TemplateID)
		assert.Equal(t, tc.User.ID, entry.UserID)
		assert.Equal(t, "12w", entry.Data["ga"])
	})

	t.Run("unknown template", func(t *testing.T) {
		rr := post(map[string]interface{}{"template_id": uuid.New().String(), "title": "Visit"}, tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"error":"Template not found"}`, rr.Body.String())
	})

	t.Run("malformed template id", func(t *testing.T) {
		rr := post(map[string]interface{}{"template_id": "nope", "title": "Visit"}, tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "template_id")
	})

	t.Run("missing title", func(t *testing.T) {
		rr := post(map[string]interface{}{"data": map[string]string{}}, tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("list is per user", func(t *testing.T) {
		time.Sleep(5 * time.Millisecond)
		require.Equal(t, http.StatusCreated, post(map[string]interface{}{"title": "Visit 2"}, tc.Token).Code)

		_, otherToken := tc.SecondUser(t)
		require.Equal(t, http.StatusCreated, post(map[string]interface{}{"title": "Not mine"}, otherToken).Code)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/entries", nil, tc.Token))
		require.Equal(t, http.StatusOK, rr.Code)

		var got []models.Entry
		testutil.ParseJSONResponse(t, rr, &got)
		require.Len(t, got, 2)
		assert.Equal(t, "Visit 2", got[0].Title)
		assert.Equal(t, "Visit 1", got[1].Title)
	})
}

func TestReferenceHandler_CategoriesAndLinks(t *testing.T) {
	router, tc := setupReferenceTestRouter(t)
	defer tc.Cleanup()

	require.NoError(t, tc.DB.Create(&[]models.Category{
		{Key: "urgences", Name: "Urgences", Position: 7},
		{Key: "consultations", Name: "Consultations", Position: 1},
	}).Error)
	require.NoError(t, tc.DB.Create(&[]models.Link{
		{Name: "WHO", URL: "https://www.who.int", Position: 2},
		{Name: "ACOG", URL: "https://www.acog.org", Specialty: "gynecology", Position: 1},
	}).Error)

	t.Run("categories ordered by position", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/categories", nil, tc.Token))
		require.Equal(t, http.StatusOK, rr.Code)

		var got []models.Category
		testutil.ParseJSONResponse(t, rr, &got)
		require.Len(t, got, 2)
		assert.Equal(t, "consultations", got[0].Key)
		assert.Equal(t, "urgences", got[1].Key)
	})

	t.Run("links", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/links", nil, tc.Token))
		require.Equal(t, http.StatusOK, rr.Code)

		var got []models.Link
		testutil.ParseJSONResponse(t, rr, &got)
		require.Len(t, got, 2)
		assert.Equal(t, "ACOG", got[0].Name)
	})

	t.Run("links by specialty", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/links?specialty=gynecology", nil, tc.Token))
		require.Equal(t, http.StatusOK, rr.Code)

		var got []models.Link
		testutil.ParseJSONResponse(t, rr, &got)
		require.Len(t, got, 1)
		assert.Equal(t, "https://www.acog.org", got[0].URL)
	})

	t.Run("requires auth", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.UnauthenticatedRequest(t, "GET", "/api/categories", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
