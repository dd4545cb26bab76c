package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadHandler_Success(t *testing.T) {
	cfg, reg, mock := newHandlerMock(t)
	store := &fakeStore{fetchBody: "hello world", fetchType: "text/plain"}
	userID := uuid.New()
	fileID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM files`)).
		WithArgs(fileID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "storage_ref", "size_bytes", "owner_id", "folder_id", "created_at"}).
			AddRow(fileID.String(), "notes.txt", "uploads/abc", int64(11), userID.String(), uuid.New().String(), time.Now()))

	req := authedRequest(http.MethodGet, "/file/download/"+fileID.String(), nil, userID)
	req.SetPathValue("id", fileID.String())
	rr := httptest.NewRecorder()
	cfg.downloadHandler(reg, store).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello world", rr.Body.String())
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, "11", rr.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="notes.txt"`, rr.Header().Get("Content-Disposition"))
}

func TestDownloadHandler_UnknownFileSkipsStorage(t *testing.T) {
	cfg, reg, mock := newHandlerMock(t)
	store := &fakeStore{fetchBody: "should never be read"}
	fileID := uuid.New()

	// Also covers another owner's file: the owner-scoped lookup comes
	// back empty either way.
	mock.ExpectQuery(regexp.QuoteMeta(`FROM files`)).WillReturnError(sql.ErrNoRows)

	req := authedRequest(http.MethodGet, "/file/download/"+fileID.String(), nil, uuid.New())
	req.SetPathValue("id", fileID.String())
	rr := httptest.NewRecorder()
	cfg.downloadHandler(reg, store).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, store.fetchCalled, "storage must not be touched for unknown files")
}

func TestDownloadHandler_FetchFailureIs502(t *testing.T) {
	cfg, reg, mock := newHandlerMock(t)
	store := &fakeStore{fetchErr: fmt.Errorf("%w: object gone", ErrUpstream)}
	userID := uuid.New()
	fileID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM files`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "storage_ref", "size_bytes", "owner_id", "folder_id", "created_at"}).
			AddRow(fileID.String(), "notes.txt", "uploads/abc", int64(11), userID.String(), uuid.New().String(), time.Now()))

	req := authedRequest(http.MethodGet, "/file/download/"+fileID.String(), nil, userID)
	req.SetPathValue("id", fileID.String())
	rr := httptest.NewRecorder()
	cfg.downloadHandler(reg, store).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestDownloadHandler_MissingContentTypeFallsBack(t *testing.T) {
	cfg, reg, mock := newHandlerMock(t)
	store := &fakeStore{fetchBody: "raw bytes"}
	userID := uuid.New()
	fileID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM files`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "storage_ref", "size_bytes", "owner_id", "folder_id", "created_at"}).
			AddRow(fileID.String(), "blob", "uploads/abc", int64(9), userID.String(), uuid.New().String(), time.Now()))

	req := authedRequest(http.MethodGet, "/file/download/"+fileID.String(), nil, userID)
	req.SetPathValue("id", fileID.String())
	rr := httptest.NewRecorder()
	cfg.downloadHandler(reg, store).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
}
