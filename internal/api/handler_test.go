package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"droplink/internal/share"
	"droplink/internal/store"
)

// Test mocks

type mockStorage struct {
	blobs map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{blobs: make(map[string][]byte)}
}

func (m *mockStorage) Save(ctx context.Context, name string, data io.Reader) (int64, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	m.blobs[name] = buf
	return int64(len(buf)), nil
}

func (m *mockStorage) Load(ctx context.Context, name string) (io.ReadCloser, error) {
	data, ok := m.blobs[name]
	if !ok {
		return nil, share.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Delete(ctx context.Context, name string) error {
	if _, ok := m.blobs[name]; !ok {
		return share.ErrNotFound
	}
	delete(m.blobs, name)
	return nil
}

func (m *mockStorage) List(ctx context.Context) ([]share.ObjectInfo, error) {
	var objects []share.ObjectInfo
	for name, data := range m.blobs {
		objects = append(objects, share.ObjectInfo{Name: name, Size: int64(len(data)), ModTime: time.Now()})
	}
	return objects, nil
}

type mockStore struct {
	groups map[string][]string
}

func newMockStore() *mockStore {
	return &mockStore{groups: make(map[string][]string)}
}

func (m *mockStore) SaveGroup(ctx context.Context, groupID string, storedNames []string) error {
	m.groups[groupID] = append([]string(nil), storedNames...)
	return nil
}

func (m *mockStore) GetGroup(ctx context.Context, groupID string) ([]string, error) {
	names, ok := m.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return names, nil
}

func (m *mockStore) DeleteGroup(ctx context.Context, groupID string) error {
	delete(m.groups, groupID)
	return nil
}

func (m *mockStore) GroupIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range m.groups {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockStore) Close() error { return nil }

const testBaseURL = "http://share.test"

func newTestHandler(limits share.Limits) (*Handler, *mockStorage, *mockStore) {
	storage := newMockStorage()
	st := newMockStore()
	svc := share.NewService(storage, st, limits)
	h := NewHandler(svc, testBaseURL)
	h.encodeQR = func(link string) (string, error) {
		return "data:image/png;base64,stub", nil
	}
	return h, storage, st
}

func defaultLimits() share.Limits {
	return share.Limits{MaxFiles: 4, MaxFileSize: 1 << 20}
}

// multipartBody builds an upload body with one part per file, in order.
func multipartBody(t *testing.T, files []struct{ name, content string }) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(uploadField, f.name)
		if err != nil {
			t.Fatalf("creating part: %v", err)
		}
		if _, err := fw.Write([]byte(f.content)); err != nil {
			t.Fatalf("writing part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, h *Handler, files []struct{ name, content string }) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("error response is not JSON: %v (body %q)", err, w.Body.String())
	}
	return resp
}

func TestUpload_SingleFile(t *testing.T) {
	h, _, st := newTestHandler(defaultLimits())

	w := doUpload(t, h, []struct{ name, content string }{{"hello-world.txt", "hi"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if resp.FileCount != 1 {
		t.Errorf("file_count = %d, want 1", resp.FileCount)
	}
	if !strings.HasPrefix(resp.DownloadLink, testBaseURL+"/api/file/") {
		t.Errorf("download_link = %q, want a single-file link", resp.DownloadLink)
	}
	if resp.QRCode != "data:image/png;base64,stub" {
		t.Errorf("qr_code = %q", resp.QRCode)
	}
	if len(resp.UploadedFiles) != 1 || resp.UploadedFiles[0] != "hello-world.txt" {
		t.Errorf("uploaded_files = %v", resp.UploadedFiles)
	}
	if len(st.groups) != 0 {
		t.Errorf("single-file upload created %d groups", len(st.groups))
	}
}

func TestUpload_MultiFileCreatesGroup(t *testing.T) {
	h, _, st := newTestHandler(defaultLimits())

	w := doUpload(t, h, []struct{ name, content string }{
		{"a.txt", "a"}, {"b.txt", "b"}, {"c.txt", "c"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp UploadResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.FileCount != 3 {
		t.Errorf("file_count = %d, want 3", resp.FileCount)
	}
	if !strings.HasPrefix(resp.DownloadLink, testBaseURL+"/api/group/") {
		t.Fatalf("download_link = %q, want a group link", resp.DownloadLink)
	}

	groupID := strings.TrimPrefix(resp.DownloadLink, testBaseURL+"/api/group/")
	members, ok := st.groups[groupID]
	if !ok {
		t.Fatalf("group %q not in retention store", groupID)
	}
	if len(members) != 3 {
		t.Errorf("group has %d members, want 3", len(members))
	}
}

func TestUpload_NoFiles(t *testing.T) {
	h, storage, _ := newTestHandler(defaultLimits())

	w := doUpload(t, h, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "no_files" {
		t.Errorf("code = %q, want no_files", resp.Code)
	}
	if len(storage.blobs) != 0 {
		t.Errorf("%d blobs written", len(storage.blobs))
	}
}

func TestUpload_TooManyFiles(t *testing.T) {
	h, storage, _ := newTestHandler(defaultLimits())

	files := make([]struct{ name, content string }, 5)
	for i := range files {
		files[i] = struct{ name, content string }{fmt.Sprintf("f%d.txt", i), "x"}
	}

	w := doUpload(t, h, files)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "too_many_files" {
		t.Errorf("code = %q, want too_many_files", resp.Code)
	}
	if len(storage.blobs) != 0 {
		t.Errorf("%d blobs remain after rejected batch, want 0", len(storage.blobs))
	}
}

func TestUpload_DuplicateFilename(t *testing.T) {
	h, storage, _ := newTestHandler(defaultLimits())

	w := doUpload(t, h, []struct{ name, content string }{
		{"file.txt", "FIRST"},
		{"file.txt", "SECOND"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "duplicate_filename" {
		t.Errorf("code = %q, want duplicate_filename", resp.Code)
	}
	if len(storage.blobs) != 0 {
		t.Errorf("%d blobs remain after rejected batch, want 0", len(storage.blobs))
	}
}

func TestUpload_FileTooLarge(t *testing.T) {
	h, storage, _ := newTestHandler(share.Limits{MaxFiles: 4, MaxFileSize: 16})

	w := doUpload(t, h, []struct{ name, content string }{
		{"ok.txt", "small"},
		{"big.bin", strings.Repeat("x", 17)},
	})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "file_too_large" {
		t.Errorf("code = %q, want file_too_large", resp.Code)
	}
	if len(storage.blobs) != 0 {
		t.Errorf("%d blobs remain after rejected batch, want 0", len(storage.blobs))
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	h, _, _ := newTestHandler(defaultLimits())

	req := httptest.NewRequest("POST", "/api/upload", strings.NewReader(`{"not":"multipart"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDownload(t *testing.T) {
	h, _, _ := newTestHandler(defaultLimits())

	uw := doUpload(t, h, []struct{ name, content string }{{"notes-v2.txt", "the notes"}})
	var up UploadResponse
	json.NewDecoder(uw.Body).Decode(&up)
	storedName := strings.TrimPrefix(up.DownloadLink, testBaseURL+"/api/file/")

	req := httptest.NewRequest("GET", "/api/file/"+storedName, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "the notes" {
		t.Errorf("body = %q", w.Body.String())
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "notes-v2.txt") {
		t.Errorf("Content-Disposition = %q, want the original filename", disposition)
	}
}

func TestDownload_Head(t *testing.T) {
	h, _, _ := newTestHandler(defaultLimits())

	uw := doUpload(t, h, []struct{ name, content string }{{"a.txt", "abc"}})
	var up UploadResponse
	json.NewDecoder(uw.Body).Decode(&up)
	storedName := strings.TrimPrefix(up.DownloadLink, testBaseURL+"/api/file/")

	req := httptest.NewRequest("HEAD", "/api/file/"+storedName, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("HEAD returned %d body bytes", w.Body.Len())
	}
}

func TestDownload_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(defaultLimits())

	for _, name := range []string{"abc123-gone.txt", "garbage"} {
		req := httptest.NewRequest("GET", "/api/file/"+name, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", name, w.Code)
			continue
		}
		if resp := decodeError(t, w); resp.Code != "not_found" {
			t.Errorf("GET %s code = %q, want not_found", name, resp.Code)
		}
	}
}

func TestGroupDownload(t *testing.T) {
	h, storage, _ := newTestHandler(defaultLimits())

	uw := doUpload(t, h, []struct{ name, content string }{
		{"one.txt", "first"}, {"two.txt", "second"}, {"three.txt", "third"},
	})
	var up UploadResponse
	json.NewDecoder(uw.Body).Decode(&up)
	groupID := strings.TrimPrefix(up.DownloadLink, testBaseURL+"/api/group/")

	// One blob expires before the download.
	for name := range storage.blobs {
		if strings.HasSuffix(name, "-two.txt") {
			delete(storage.blobs, name)
		}
	}

	req := httptest.NewRequest("GET", "/api/group/"+groupID, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q, want application/zip", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "DropLink_Files_"+groupID+".zip") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	got := make(map[string]string)
	for _, f := range zr.File {
		rc, _ := f.Open()
		data, _ := io.ReadAll(rc)
		rc.Close()
		got[f.Name] = string(data)
	}
	if len(got) != 2 {
		t.Fatalf("archive has %d entries, want 2 (missing blob skipped)", len(got))
	}
	if got["one.txt"] != "first" || got["three.txt"] != "third" {
		t.Errorf("archive contents = %v", got)
	}
}

func TestGroupDownload_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(defaultLimits())

	req := httptest.NewRequest("GET", "/api/group/nosuchgroup1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "not_found" {
		t.Errorf("code = %q, want not_found", resp.Code)
	}
}

func TestGroupInfo(t *testing.T) {
	h, _, _ := newTestHandler(defaultLimits())

	uw := doUpload(t, h, []struct{ name, content string }{
		{"report-final.pdf", "pdf"}, {"data.csv", "csv"},
	})
	var up UploadResponse
	json.NewDecoder(uw.Body).Decode(&up)
	groupID := strings.TrimPrefix(up.DownloadLink, testBaseURL+"/api/group/")

	req := httptest.NewRequest("GET", "/api/group/"+groupID+"/info", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp GroupInfoResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Type != "group" {
		t.Errorf("type = %q, want group", resp.Type)
	}
	if resp.GroupID != groupID {
		t.Errorf("group_id = %q, want %q", resp.GroupID, groupID)
	}
	if len(resp.Files) != 2 || resp.Files[0].Name != "report-final.pdf" || resp.Files[1].Name != "data.csv" {
		t.Errorf("files = %v", resp.Files)
	}
	if resp.DownloadLink != up.DownloadLink {
		t.Errorf("download_link = %q, want %q", resp.DownloadLink, up.DownloadLink)
	}
}

func TestGroupInfo_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(defaultLimits())

	req := httptest.NewRequest("GET", "/api/group/nosuchgroup1/info", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
