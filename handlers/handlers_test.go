package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serverTestRouter(store *fakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewServerHandler(store)
	router.GET("/servers", h.ListServers)
	router.GET("/servers/:id", h.GetServer)
	router.PATCH("/servers/:id", h.UpdateServer)
	router.DELETE("/servers/:id", h.DeleteServer)
	return router
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGetServerHidesCredentials(t *testing.T) {
	router := serverTestRouter(newFakeStore(unreachableServer("srv-1")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/srv-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"srv-1"`)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, w.Body.String(), "password")
}

func TestGetServerNotFound(t *testing.T) {
	router := serverTestRouter(newFakeStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListServers(t *testing.T) {
	router := serverTestRouter(newFakeStore(unreachableServer("srv-1"), unreachableServer("srv-2")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers?limit=10", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":2`)
}

func TestUpdateServerNotFound(t *testing.T) {
	router := serverTestRouter(newFakeStore())

	body := strings.NewReader(`{"name":"renamed"}`)
	req := httptest.NewRequest(http.MethodPatch, "/servers/nope", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteServer(t *testing.T) {
	store := newFakeStore(unreachableServer("srv-1"))
	router := serverTestRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/servers/srv-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/servers/srv-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
