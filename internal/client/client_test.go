package client

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/slipstream-hr/slipstream/internal/common"
	"github.com/slipstream-hr/slipstream/internal/models"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	config := common.NewDefaultConfig()
	config.API.BaseURL = serverURL
	config.API.Token = "test-token"
	config.API.RateLimit = "0s"

	c, err := New(config, arbor.NewLogger())
	require.NoError(t, err)
	return c
}

func writeEnvelope(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < 300,
		"message": message,
		"data":    data,
	})
}

func tempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func tempZip(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	entry, err := zw.Create("payslip-PF1234.pdf")
	require.NoError(t, err)
	_, err = entry.Write([]byte("stub"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestSubmitBulkUpload(t *testing.T) {
	var gotAuth, gotFileName, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/employees/bulk-upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1 << 20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotFileName = header.Filename
		gotRequestID = r.FormValue("requestId")

		writeEnvelope(w, http.StatusAccepted, map[string]string{"jobId": "42"}, "File queued for processing")
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	filePath := tempFile(t, "employees.xlsx", []byte("spreadsheet"))

	submission, err := c.SubmitBulkUpload(context.Background(), filePath)
	require.NoError(t, err)

	assert.Equal(t, "42", submission.JobID)
	assert.Equal(t, "File queued for processing", submission.Message)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "employees.xlsx", gotFileName)
	assert.NotEmpty(t, gotRequestID, "correlation ID missing from upload form")
}

func TestSubmitBulkUploadRejectsWrongExtension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("pre-flight rejection must not reach the backend")
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	filePath := tempFile(t, "employees.csv", []byte("a,b"))

	_, err := c.SubmitBulkUpload(context.Background(), filePath)
	subErr, ok := AsSubmissionError(err)
	require.True(t, ok)
	assert.Equal(t, models.JobKindEmployeeBulkUpload, subErr.Kind)
	assert.Contains(t, subErr.Message, "invalid file type")
}

func TestSubmitPayslipUpload(t *testing.T) {
	var gotMonth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payslips/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		gotMonth = r.FormValue("payMonth")
		writeEnvelope(w, http.StatusAccepted, map[string]string{"jobId": "upload-7"}, "")
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	filePath := tempZip(t, "payslips.zip")

	submission, err := c.SubmitPayslipUpload(context.Background(), filePath, "2026-08")
	require.NoError(t, err)

	assert.Equal(t, "upload-7", submission.JobID)
	assert.Equal(t, "2026-08", gotMonth)
}

func TestSubmitPayslipUploadRejectsBadMonth(t *testing.T) {
	c := testClient(t, "http://localhost:1")
	filePath := tempZip(t, "payslips.zip")

	_, err := c.SubmitPayslipUpload(context.Background(), filePath, "August 2026")
	subErr, ok := AsSubmissionError(err)
	require.True(t, ok)
	assert.Contains(t, subErr.Message, "YYYY-MM")
}

func TestSubmitBatchSendSurfacesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payslips/batches/b-123/send", r.URL.Path)
		writeEnvelope(w, http.StatusConflict, nil, "Batch has already been sent")
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	_, err := c.SubmitBatchSend(context.Background(), "b-123")
	subErr, ok := AsSubmissionError(err)
	require.True(t, ok)
	assert.Equal(t, "Batch has already been sent", subErr.Message)
}

func TestSubmitRequiresJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]string{}, "ok")
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	_, err := c.SubmitBatchSend(context.Background(), "b-123")
	subErr, ok := AsSubmissionError(err)
	require.True(t, ok)
	assert.Contains(t, subErr.Message, "job identifier")
}

func TestGetJobStatusNormalizesWireStates(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.JobKind
		path     string
		wire     string
		expected models.JobState
	}{
		{"send waiting", models.JobKindBatchSend, "/payslips/batches/send/s-1/status", "waiting", models.JobStateQueued},
		{"send active", models.JobKindBatchSend, "/payslips/batches/send/s-1/status", "active", models.JobStateProcessing},
		{"upload parsing", models.JobKindPayslipUpload, "/payslips/upload/s-1/status", "parsing", models.JobStateProcessing},
		{"upload queued", models.JobKindEmployeeBulkUpload, "/employees/bulk-upload/s-1/status", "queued", models.JobStateQueued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, tt.path, r.URL.Path)
				writeEnvelope(w, http.StatusOK, map[string]interface{}{
					"state":    tt.wire,
					"progress": 25,
				}, "")
			}))
			defer server.Close()

			c := testClient(t, server.URL)
			job, err := c.GetJobStatus(context.Background(), tt.kind, "s-1")
			require.NoError(t, err)

			assert.Equal(t, tt.expected, job.State)
			require.NotNil(t, job.Progress)
			assert.Equal(t, 25, job.Progress.Percentage)
		})
	}
}

func TestGetJobStatusDecodesCompletedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"state": "completed",
			"result": map[string]interface{}{
				"totalRecords": 200,
				"successCount": 198,
				"failureCount": 2,
				"errors": []map[string]interface{}{
					{"row": 3, "ippisNumber": "PF0003", "errors": []string{"invalid email"}},
				},
			},
		}, "")
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	job, err := c.GetJobStatus(context.Background(), models.JobKindEmployeeBulkUpload, "j-1")
	require.NoError(t, err)

	require.NotNil(t, job.Result)
	require.NotNil(t, job.Result.BulkUpload)
	assert.Equal(t, 198, job.Result.BulkUpload.SuccessCount)
	assert.Equal(t, 2, job.Result.BulkUpload.FailureCount)
	require.Len(t, job.Result.BulkUpload.Errors, 1)
	assert.Equal(t, "PF0003", job.Result.BulkUpload.Errors[0].IppisNumber)
}

func TestGetJobStatusRejectsUnknownState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"state": "stalled"}, "")
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	_, err := c.GetJobStatus(context.Background(), models.JobKindBatchSend, "j-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stalled")
}

func TestListEmployees(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/employees", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "adam", r.URL.Query().Get("search"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"success": true,
			"data": [{"id":1,"ippisNumber":"PF0001","firstName":"Adam","lastName":"Okoro","email":"adam@example.com"}],
			"meta": {"total":51,"page":2,"limit":50,"totalPages":2}
		}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	page, err := c.ListEmployees(context.Background(), 2, 50, "adam")
	require.NoError(t, err)

	require.Len(t, page.Employees, 1)
	assert.Equal(t, "PF0001", page.Employees[0].IppisNumber)
	assert.Equal(t, 51, page.Meta.Total)
	assert.Equal(t, 2, page.Meta.TotalPages)
}
