package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/exporter"
	"tmc-schedule/internal/importer"
	"tmc-schedule/internal/logging"
	"tmc-schedule/internal/model"
	"tmc-schedule/internal/store"
)

const scheduleCSV = "病院,昼夜,班,学籍番号,氏名,フリガナ,性別,生年月日,年齢,1/15,1/16,1/17\n" +
	"HospA,day,G1,S001,Jane Doe,ジェーン,F,2000-01-01,24,〇,0,\n" +
	"HospB,night,G2,S002,Taro,タロウ,M,,,学,半,明\n"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultConfig()
	coord := importer.NewCoordinator(st, nil, importer.Options{
		BatchSize:      2,
		BatchTimeout:   time.Second,
		InitialBackoff: time.Millisecond,
	}, logging.Discard())

	h := NewHandler(st, coord, cfg, logging.Discard())
	h.uploadDir = dir

	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return r, st
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	return &body, mw.FormDataContentType()
}

func do(r http.Handler, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func importSample(t *testing.T, r http.Handler) string {
	t.Helper()
	body, ct := multipartBody(t, "schedule.csv", scheduleCSV, map[string]string{"template": "compact"})
	w := do(r, http.MethodPost, "/api/import", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d body=%s", w.Code, w.Body.String())
	}
	return w.Body.String()
}

func TestImport_StreamsProgress(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	out := importSample(t, r)
	if !strings.HasPrefix(out, "data: ") {
		t.Fatalf("expected SSE frames, got %q", out)
	}

	var last importer.ProgressEvent
	for _, frame := range strings.Split(strings.TrimSpace(out), "\n\n") {
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &last); err != nil {
			t.Fatalf("decode frame %q: %v", frame, err)
		}
	}
	if last.Type != importer.EventDone {
		t.Fatalf("last event = %s (%s)", last.Type, last.Message)
	}
	data, _ := json.Marshal(last.Data)
	var report model.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != model.RunSucceeded || report.Source != "schedule.csv" || report.EntriesInserted != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestImport_Validation(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	var empty bytes.Buffer
	mw := multipart.NewWriter(&empty)
	_ = mw.WriteField("template", "compact")
	_ = mw.Close()
	if w := do(r, http.MethodPost, "/api/import", &empty, mw.FormDataContentType()); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: status = %d", w.Code)
	}

	body, ct := multipartBody(t, "schedule.csv", scheduleCSV, map[string]string{"template": "nope"})
	if w := do(r, http.MethodPost, "/api/import", body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown template: status = %d", w.Code)
	}
}

func TestQueries(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)
	importSample(t, r)

	w := do(r, http.MethodGet, "/api/students", nil, "")
	var students []model.Student
	if err := json.Unmarshal(w.Body.Bytes(), &students); err != nil || len(students) != 2 {
		t.Fatalf("students: %s (%v)", w.Body.String(), err)
	}

	w = do(r, http.MethodGet, "/api/students/S001", nil, "")
	var detail struct {
		Student  model.Student        `json:"student"`
		Schedule []store.ScheduleView `json:"schedule"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Student.Age != 24 || len(detail.Schedule) != 1 || detail.Schedule[0].Symbol != "〇" {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	if w := do(r, http.MethodGet, "/api/students/nope", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing student: status = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/schedules?date="+url.QueryEscape("1/15"), nil, "")
	var rows []store.ScheduleView
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil || len(rows) != 2 {
		t.Fatalf("schedules by date: %s (%v)", w.Body.String(), err)
	}

	if w := do(r, http.MethodGet, "/api/schedules?limit=x", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/stats", nil, "")
	var stats store.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil || stats.Students != 2 || stats.Entries != 4 {
		t.Fatalf("stats: %s (%v)", w.Body.String(), err)
	}

	w = do(r, http.MethodGet, "/api/status", nil, "")
	var status StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Initialized || status.Driver != store.DriverSQLite || status.LastStatus != "succeeded" {
		t.Fatalf("unexpected status: %+v", status)
	}

	w = do(r, http.MethodGet, "/api/imports", nil, "")
	var logs []model.ImportLog
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil || len(logs) != 1 {
		t.Fatalf("imports: %s (%v)", w.Body.String(), err)
	}
}

func TestExportEndpoints(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)
	importSample(t, r)

	for _, format := range []string{"json", "csv", "legacy", "xlsx"} {
		w := do(r, http.MethodGet, "/api/export/"+format, nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("export %s: status = %d", format, w.Code)
		}
		if got := w.Header().Get("Content-Type"); got != exporter.ContentType(format) {
			t.Fatalf("export %s: content type = %q", format, got)
		}
		if !strings.Contains(w.Header().Get("Content-Disposition"), "attachment") {
			t.Fatalf("export %s: missing attachment header", format)
		}
	}

	w := do(r, http.MethodGet, "/api/export/json", nil, "")
	var doc exporter.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode json export: %v", err)
	}
	if len(doc.Students) != 2 || len(doc.Students[1].Schedule) != 3 {
		t.Fatalf("unexpected document: %+v", doc)
	}

	if w := do(r, http.MethodGet, "/api/export/pdf", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: status = %d", w.Code)
	}
}

func TestTemplateAndUnifiedImport(t *testing.T) {
	t.Parallel()
	r, st := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/template.csv", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "学籍番号") {
		t.Fatalf("template: %d %s", w.Code, w.Body.String())
	}

	body, ct := multipartBody(t, "unified.csv", w.Body.String(), nil)
	w = do(r, http.MethodPost, "/api/import/unified", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("unified import: %d %s", w.Code, w.Body.String())
	}
	var report model.RunReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Students != 2 || report.EntriesInserted != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rows, err := st.ListSchedules(context.Background(), store.ScheduleFilter{Date: "2026-02-01"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("schedules for 2026-02-01: %+v (%v)", rows, err)
	}
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()
	r, st := newTestRouter(t)
	importSample(t, r)

	if w := do(r, http.MethodDelete, "/api/data", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	stats, err := st.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Students != 0 || stats.Entries != 0 {
		t.Fatalf("data not deleted: %+v", stats)
	}
}

// cancelAfterReplace 学生写入后立即取消请求上下文，模拟浏览器断开
type cancelAfterReplace struct {
	*store.Store
	cancel context.CancelFunc
}

func (s *cancelAfterReplace) ReplaceStudents(ctx context.Context, students []model.Student) (map[string]int64, error) {
	ids, err := s.Store.ReplaceStudents(ctx, students)
	s.cancel()
	return ids, err
}

func TestImport_ClientDisconnectStillLoadsSchedules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &cancelAfterReplace{Store: st, cancel: cancel}
	coord := importer.NewCoordinator(sink, nil, importer.Options{
		BatchSize:      1,
		BatchTimeout:   time.Second,
		InitialBackoff: time.Millisecond,
	}, logging.Discard())
	h := NewHandler(st, coord, config.DefaultConfig(), logging.Discard())
	h.uploadDir = dir
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))

	body, ct := multipartBody(t, "schedule.csv", scheduleCSV, map[string]string{"template": "compact"})
	req := httptest.NewRequest(http.MethodPost, "/api/import", body).WithContext(ctx)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if ctx.Err() == nil {
		t.Fatalf("request context was not cancelled")
	}
	rows, err := st.ListSchedules(context.Background(), store.ScheduleFilter{})
	if err != nil {
		t.Fatalf("list schedules: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("schedules = %d, want 4", len(rows))
	}
}
