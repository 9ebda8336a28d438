package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora/forecast-recon/internal/api"
	"github.com/planora/forecast-recon/internal/service"
	"github.com/planora/forecast-recon/internal/session"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.NewMemoryStore(time.Hour)
	t.Cleanup(store.Close)

	return api.NewRouter(service.NewReconService(store), t.TempDir(), nil)
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func uploadSession(t *testing.T, router *gin.Engine, content string) string {
	t.Helper()
	body, contentType := multipartBody(t, "files", "forecast.csv", content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		SessionID string `json:"session_id"`
		Rows      int    `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpload(t *testing.T) {
	router := newTestRouter(t)

	body, contentType := multipartBody(t, "files", "forecast.csv",
		"S1,L1,P1,,20240105,10\nS1,L1,P1,,20240120,30\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		SessionID string `json:"session_id"`
		Rows      int    `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 2, resp.Rows)
}

func TestUpload_NoFiles(t *testing.T) {
	router := newTestRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeneratePivot(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\nS1,L1,P1,,20240120,30\n")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+id+"/pivot",
		gin.H{"granularity": "month"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Granularity string `json:"granularity"`
		GroupBySite bool   `json:"group_by_site"`
		Rows        int    `json:"rows"`
		Buckets     int    `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "month", resp.Granularity)
	assert.True(t, resp.GroupBySite)
	assert.Equal(t, 1, resp.Rows)
	assert.Equal(t, 1, resp.Buckets)
}

func TestGeneratePivot_BadGranularity(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\n")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+id+"/pivot",
		gin.H{"granularity": "quarter"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeneratePivot_UnknownSession(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/nope/pivot",
		gin.H{"granularity": "month"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadPivot_CSV(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\nS1,L1,P1,,20240120,30\n")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+id+"/pivot",
		gin.H{"granularity": "month"})
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/pivot?format=csv", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "pivot_table.csv")
	assert.Equal(t,
		"Site,Product,2024-01,Grand Total\n"+
			"S1-L1,P1,40,40\n",
		w.Body.String())
}

func TestDownloadPivot_BeforeGenerate(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\n")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/pivot", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFullWorkflow(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\nS1,L1,P1,,20240120,30\n")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+id+"/pivot",
		gin.H{"granularity": "month"})
	require.Equal(t, http.StatusOK, w.Code)

	edited := "Site,Product,2024-01,Grand Total\nS1-L1,P1,80,80\n"
	body, contentType := multipartBody(t, "file", "edited.csv", edited)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/pivot/upload", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Unchanged       int   `json:"unchanged"`
		Changed         int   `json:"changed"`
		New             int   `json:"new"`
		Rows            int   `json:"rows"`
		NewCombinations []any `json:"new_combinations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Changed)
	assert.Zero(t, resp.New)
	assert.Equal(t, 2, resp.Rows)
	assert.Empty(t, resp.NewCombinations)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/output", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "final_output.csv")
	assert.Equal(t,
		"S1,L1,P1,,20240105,20\n"+
			"S1,L1,P1,,20240120,60\n",
		w.Body.String())
}

func TestUploadEditedPivot_NewCombinationWarning(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\n")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+id+"/pivot",
		gin.H{"granularity": "month"})
	require.Equal(t, http.StatusOK, w.Code)

	edited := "Site,Product,2024-01,Grand Total\n" +
		"S1-L1,P1,10,10\n" +
		"S1-L1,P2,15,15\n"
	body, contentType := multipartBody(t, "file", "edited.csv", edited)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/pivot/upload", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		New             int `json:"new"`
		NewCombinations []struct {
			Site    string  `json:"site"`
			Product string  `json:"product"`
			Bucket  string  `json:"bucket"`
			Qty     float64 `json:"qty"`
		} `json:"new_combinations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.New)
	require.Len(t, resp.NewCombinations, 1)
	assert.Equal(t, "S1-L1", resp.NewCombinations[0].Site)
	assert.Equal(t, "P2", resp.NewCombinations[0].Product)
	assert.Equal(t, "2024-01", resp.NewCombinations[0].Bucket)
	assert.Equal(t, 15.0, resp.NewCombinations[0].Qty)
}

func TestUploadEditedPivot_MalformedTable(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\n")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+id+"/pivot",
		gin.H{"granularity": "month"})
	require.Equal(t, http.StatusOK, w.Code)

	body, contentType := multipartBody(t, "file", "edited.csv",
		"Site,Product,NotABucket\nS1-L1,P1,3\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/pivot/upload", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDownloadOutput_BeforeApply(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\n")

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+id+"/pivot",
		gin.H{"granularity": "month"})
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/output", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetDiagnostics(t *testing.T) {
	router := newTestRouter(t)
	id := uploadSession(t, router, "S1,L1,P1,,20240105,10\nS1,L1,P2,,baddate,5\n")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/diagnostics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total int `json:"total"`
		Diagnostics struct {
			BadDates []struct {
				Value string `json:"value"`
			} `json:"bad_dates"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Diagnostics.BadDates, 1)
	assert.Equal(t, "baddate", resp.Diagnostics.BadDates[0].Value)
}
