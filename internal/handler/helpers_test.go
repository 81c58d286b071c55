package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fir-api/internal/middleware"
	"github.com/noah-isme/fir-api/internal/models"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *errorBody             `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	testCitizen = models.NewCitizen("user-1", "citizen")
	testAdmin   = models.NewAdmin("admin-1", "root")
)

func testOfficer(t *testing.T) models.Principal {
	t.Helper()
	p, err := models.NewPolice("officer-1", "officer", "station-1")
	require.NoError(t, err)
	return p
}

// newContext builds a test context; an unauthenticated principal leaves the
// request anonymous.
func newContext(method, target string, body io.Reader, principal models.Principal) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if principal.Authenticated() {
		c.Set(middleware.ContextPrincipalKey, principal)
	}
	return c, rec
}

// flush commits a status set without a body, as the engine does once the
// handler chain returns.
func flush(c *gin.Context) {
	c.Writer.WriteHeaderNow()
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func withJSON(c *gin.Context) {
	c.Request.Header.Set("Content-Type", "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	env := decode(t, rec)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}
