package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legout/flowerpower/internal/app"
	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/fs"
	"github.com/legout/flowerpower/internal/project"
)

func TestBuildRouter_Healthz_And_Readyz(t *testing.T) {
	memfs := fs.NewMemory()
	proj, err := project.New(memfs, "demo", ".", false)
	require.NoError(t, err)

	srv := app.NewServer(proj)
	h := app.BuildRouter(config.RuntimeConfig{Port: 8080}, srv)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Result().StatusCode)

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec2.Result().StatusCode)
}

func TestBuildRouter_ListPipelines_Empty(t *testing.T) {
	memfs := fs.NewMemory()
	proj, err := project.New(memfs, "demo", ".", false)
	require.NoError(t, err)

	srv := app.NewServer(proj)
	h := app.BuildRouter(config.RuntimeConfig{Port: 8080}, srv)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipelines", nil))
	require.Equal(t, http.StatusOK, rec.Result().StatusCode)
}
