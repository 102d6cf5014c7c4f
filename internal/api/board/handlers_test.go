package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/auth"
	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/feedback"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/middleware"
	"github.com/lanehq/lanehq/internal/roadmap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeRoadmap struct {
	lanes   *roadmap.Lanes
	view    *roadmap.View
	filter  []string
	moveErr error
	moved   *roadmap.DropEvent
	archErr error
}

func (f *fakeRoadmap) Lanes() *roadmap.Lanes { return f.lanes }

func (f *fakeRoadmap) Board(_ context.Context, boardID string, filter []string) (*roadmap.View, error) {
	f.filter = filter
	if f.view == nil {
		return nil, roadmap.ErrBoardNotFound
	}
	return f.view, nil
}

func (f *fakeRoadmap) Move(_ context.Context, boardID string, ev roadmap.DropEvent) (*roadmap.MoveResult, error) {
	f.moved = &ev
	if f.moveErr != nil {
		return nil, f.moveErr
	}
	return &roadmap.MoveResult{Revision: 8, Placements: []models.Placement{{ItemID: ev.ItemID, Status: ev.TargetLane, Position: 1024}}}, nil
}

func (f *fakeRoadmap) Archive(_ context.Context, boardID, itemID string) (*roadmap.MoveResult, error) {
	if f.archErr != nil {
		return nil, f.archErr
	}
	return &roadmap.MoveResult{Revision: 9}, nil
}

type fakeFeedback struct {
	items       map[string]*models.FeedbackItem
	created     *feedback.Input
	filter      repositories.FeedbackFilter
	limit       int
	offset      int
	enabled     bool
	uploaded    []byte
	uploadName  string
	attachments []*models.Attachment
	downloadURL string
	createErr   error
}

func (f *fakeFeedback) Create(_ context.Context, boardID string, in feedback.Input) (*models.FeedbackItem, int64, error) {
	if err := in.Normalize(); err != nil {
		return nil, 0, err
	}
	if f.createErr != nil {
		return nil, 0, f.createErr
	}
	f.created = &in
	return &models.FeedbackItem{ID: "new", BoardID: boardID, Title: in.Title, AuthorID: in.AuthorID}, 3, nil
}

func (f *fakeFeedback) Get(_ context.Context, boardID, id string) (*models.FeedbackItem, error) {
	if item, ok := f.items[id]; ok {
		return item, nil
	}
	return nil, feedback.ErrItemNotFound
}

func (f *fakeFeedback) List(_ context.Context, boardID string, filter repositories.FeedbackFilter, limit, offset int) ([]*models.FeedbackItem, int, error) {
	f.filter, f.limit, f.offset = filter, limit, offset
	return nil, 0, nil
}

func (f *fakeFeedback) Update(_ context.Context, boardID, id string, in feedback.Input) (*models.FeedbackItem, int64, error) {
	item, err := f.Get(context.Background(), boardID, id)
	if err != nil {
		return nil, 0, err
	}
	item.Title = in.Title
	return item, 4, nil
}

func (f *fakeFeedback) ChangeStatus(_ context.Context, boardID, id string, status models.FeedbackStatus) (*roadmap.MoveResult, error) {
	if _, err := f.Get(context.Background(), boardID, id); err != nil {
		return nil, err
	}
	if status == "unknown" {
		return nil, &roadmap.ConfigurationError{Status: string(status)}
	}
	return &roadmap.MoveResult{Revision: 5}, nil
}

func (f *fakeFeedback) Upvote(_ context.Context, boardID, id string) (int, int64, error) {
	if _, err := f.Get(context.Background(), boardID, id); err != nil {
		return 0, 0, err
	}
	return 7, 6, nil
}

func (f *fakeFeedback) AttachmentsEnabled() bool { return f.enabled }

func (f *fakeFeedback) Upload(_ context.Context, orgID string, item *models.FeedbackItem, fileName, contentType string, body io.Reader) (*models.Attachment, error) {
	data, _ := io.ReadAll(body)
	f.uploaded, f.uploadName = data, fileName
	return &models.Attachment{ID: "att-1", FeedbackID: item.ID, FileName: fileName, SizeBytes: int64(len(data))}, nil
}

func (f *fakeFeedback) Attachments(_ context.Context, feedbackID string) ([]*models.Attachment, error) {
	return f.attachments, nil
}

func (f *fakeFeedback) Download(_ context.Context, feedbackID, attachmentID string) (*models.Attachment, string, io.ReadCloser, error) {
	for _, a := range f.attachments {
		if a.ID == attachmentID {
			if f.downloadURL != "" {
				return a, f.downloadURL, nil, nil
			}
			return a, "", io.NopCloser(strings.NewReader("hello")), nil
		}
	}
	return nil, "", nil, feedback.ErrAttachmentNotFound
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newTestRouter(rm *fakeRoadmap, fb *fakeFeedback, principal *auth.Principal) *gin.Engine {
	h := NewHandlers(rm, fb, live.NewHub(nil, "test", nil), 0, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.OrganizationKey, &models.Organization{ID: "org-1", Slug: "acme"})
		c.Set(middleware.BoardKey, &models.Board{ID: "board-1", OrganizationID: "org-1", Slug: "ideas"})
		if principal != nil {
			c.Set(middleware.PrincipalKey, principal)
		}
		c.Next()
	})
	g := r.Group("/b")
	g.GET("/lanes", h.LanesHandler())
	g.GET("/roadmap", h.RoadmapHandler())
	g.POST("/roadmap/moves", h.MoveHandler())
	g.GET("/feedback", h.ListFeedbackHandler())
	g.POST("/feedback", h.CreateFeedbackHandler())
	g.GET("/feedback/:item", h.GetFeedbackHandler())
	g.PUT("/feedback/:item", h.UpdateFeedbackHandler())
	g.PUT("/feedback/:item/status", h.ChangeStatusHandler())
	g.DELETE("/feedback/:item", h.ArchiveFeedbackHandler())
	g.POST("/feedback/:item/vote", h.UpvoteHandler())
	g.POST("/feedback/:item/attachments", h.UploadAttachmentHandler())
	g.GET("/feedback/:item/attachments", h.ListAttachmentsHandler())
	g.GET("/feedback/:item/attachments/:attachment", h.DownloadAttachmentHandler())
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newFeedback() *fakeFeedback {
	return &fakeFeedback{items: map[string]*models.FeedbackItem{
		"i1": {ID: "i1", BoardID: "board-1", Title: "Dark mode", Status: models.StatusPlanned},
	}}
}

// ---------------------------------------------------------------------------
// roadmap
// ---------------------------------------------------------------------------

func TestLanesHandler(t *testing.T) {
	r := newTestRouter(&fakeRoadmap{lanes: roadmap.MustDefaultLanes()}, newFeedback(), nil)
	w := do(r, http.MethodGet, "/b/lanes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var body struct {
		Lanes []roadmap.Lane `json:"lanes"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Lanes) != len(models.RoadmapStatuses()) {
		t.Errorf("lanes = %d, want %d", len(body.Lanes), len(models.RoadmapStatuses()))
	}
}

func TestRoadmapHandler(t *testing.T) {
	rm := &fakeRoadmap{view: &roadmap.View{BoardID: "board-1", Revision: 12}}
	r := newTestRouter(rm, newFeedback(), nil)

	w := do(r, http.MethodGet, "/b/roadmap?lanes=planned,%20done,,", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if len(rm.filter) != 2 || rm.filter[0] != "planned" || rm.filter[1] != "done" {
		t.Errorf("filter = %v", rm.filter)
	}
	var view roadmap.View
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if view.Revision != 12 {
		t.Errorf("revision = %d, want 12", view.Revision)
	}

	rm.view = nil
	if w := do(r, http.MethodGet, "/b/roadmap", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing board code = %d, want 404", w.Code)
	}
}

func TestMoveHandler(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		moveErr error
		code    int
	}{
		{"moved", `{"item_id":"i1","source_lane":"planned","target_lane":"done","target_index":0}`, nil, http.StatusOK},
		{"malformed", `{`, nil, http.StatusBadRequest},
		{"missing item", `{"target_lane":"done"}`, nil, http.StatusBadRequest},
		{"unknown lane", `{"item_id":"i1","target_lane":"later"}`, &roadmap.ConfigurationError{Status: "later"}, http.StatusUnprocessableEntity},
		{"negative index", `{"item_id":"i1","target_lane":"done","target_index":-1}`, roadmap.ErrInvalidIndex, http.StatusBadRequest},
		{"unknown item", `{"item_id":"zz","target_lane":"done"}`, roadmap.ErrItemNotFound, http.StatusNotFound},
		{"store failure", `{"item_id":"i1","target_lane":"done"}`, errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := &fakeRoadmap{moveErr: tt.moveErr}
			r := newTestRouter(rm, newFeedback(), nil)
			w := do(r, http.MethodPost, "/b/roadmap/moves", tt.body)
			if w.Code != tt.code {
				t.Errorf("code = %d, want %d (body %s)", w.Code, tt.code, w.Body)
			}
			if tt.code == http.StatusInternalServerError && strings.Contains(w.Body.String(), "connection reset") {
				t.Error("internal error detail leaked to the client")
			}
		})
	}
}

func TestMoveHandler_Acknowledgement(t *testing.T) {
	rm := &fakeRoadmap{}
	r := newTestRouter(rm, newFeedback(), nil)
	w := do(r, http.MethodPost, "/b/roadmap/moves", `{"item_id":"i1","source_lane":"planned","target_lane":"done","target_index":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if rm.moved == nil || rm.moved.TargetIndex != 2 || rm.moved.SourceLane != models.StatusPlanned {
		t.Errorf("drop event = %+v", rm.moved)
	}
	var res roadmap.MoveResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Revision != 8 || len(res.Placements) != 1 {
		t.Errorf("result = %+v", res)
	}
}

// ---------------------------------------------------------------------------
// feedback
// ---------------------------------------------------------------------------

func TestListFeedbackHandler(t *testing.T) {
	fb := newFeedback()
	r := newTestRouter(&fakeRoadmap{}, fb, nil)

	w := do(r, http.MethodGet, "/b/feedback?status=planned&include_archived=true&page=3&per_page=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if fb.filter.Status == nil || *fb.filter.Status != models.StatusPlanned || !fb.filter.IncludeArchived {
		t.Errorf("filter = %+v", fb.filter)
	}
	if fb.limit != 10 || fb.offset != 20 {
		t.Errorf("limit/offset = %d/%d, want 10/20", fb.limit, fb.offset)
	}
	if !strings.Contains(w.Body.String(), `"feedback":[]`) {
		t.Errorf("empty list should encode as [], got %s", w.Body)
	}

	if w := do(r, http.MethodGet, "/b/feedback?status=someday", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown status code = %d, want 400", w.Code)
	}
}

func TestCreateFeedbackHandler(t *testing.T) {
	fb := newFeedback()
	r := newTestRouter(&fakeRoadmap{}, fb, &auth.Principal{Subject: "user-9"})

	w := do(r, http.MethodPost, "/b/feedback", `{"title":"  Export CSV  ","description":"please"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("code = %d (body %s)", w.Code, w.Body)
	}
	if fb.created == nil || fb.created.AuthorID == nil || *fb.created.AuthorID != "user-9" {
		t.Errorf("author not taken from principal: %+v", fb.created)
	}
	var body struct {
		Feedback models.FeedbackItem `json:"feedback"`
		Revision int64               `json:"revision"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Feedback.Title != "Export CSV" || body.Revision != 3 {
		t.Errorf("body = %+v", body)
	}

	if w := do(r, http.MethodPost, "/b/feedback", `{"title":"   "}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty title code = %d, want 400", w.Code)
	}
	long := `{"title":"` + strings.Repeat("x", 256) + `"}`
	if w := do(r, http.MethodPost, "/b/feedback", long); w.Code != http.StatusBadRequest {
		t.Errorf("long title code = %d, want 400", w.Code)
	}
}

func TestFeedbackItemHandlers(t *testing.T) {
	rm := &fakeRoadmap{archErr: nil}
	r := newTestRouter(rm, newFeedback(), nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"get", http.MethodGet, "/b/feedback/i1", "", http.StatusOK},
		{"get missing", http.MethodGet, "/b/feedback/nope", "", http.StatusNotFound},
		{"update", http.MethodPut, "/b/feedback/i1", `{"title":"Dark theme"}`, http.StatusOK},
		{"update missing", http.MethodPut, "/b/feedback/nope", `{"title":"x"}`, http.StatusNotFound},
		{"status", http.MethodPut, "/b/feedback/i1/status", `{"status":"done"}`, http.StatusOK},
		{"status without body", http.MethodPut, "/b/feedback/i1/status", `{}`, http.StatusBadRequest},
		{"status unknown lane", http.MethodPut, "/b/feedback/i1/status", `{"status":"unknown"}`, http.StatusUnprocessableEntity},
		{"vote", http.MethodPost, "/b/feedback/i1/vote", "", http.StatusOK},
		{"vote missing", http.MethodPost, "/b/feedback/nope/vote", "", http.StatusNotFound},
		{"archive", http.MethodDelete, "/b/feedback/i1", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			if w.Code != tt.code {
				t.Errorf("code = %d, want %d (body %s)", w.Code, tt.code, w.Body)
			}
		})
	}

	rm.archErr = roadmap.ErrAlreadyArchived
	if w := do(r, http.MethodDelete, "/b/feedback/i1", ""); w.Code != http.StatusConflict {
		t.Errorf("archive twice code = %d, want 409", w.Code)
	}
}

// ---------------------------------------------------------------------------
// attachments
// ---------------------------------------------------------------------------

func multipartBody(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadAttachmentHandler(t *testing.T) {
	fb := newFeedback()
	r := newTestRouter(&fakeRoadmap{}, fb, nil)

	body, ct := multipartBody(t, "file", "shot.png", "PNGDATA")
	req := httptest.NewRequest(http.MethodPost, "/b/feedback/i1/attachments", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("disabled storage code = %d, want 501", w.Code)
	}

	fb.enabled = true
	body, ct = multipartBody(t, "file", "shot.png", "PNGDATA")
	req = httptest.NewRequest(http.MethodPost, "/b/feedback/i1/attachments", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("code = %d (body %s)", w.Code, w.Body)
	}
	if string(fb.uploaded) != "PNGDATA" || fb.uploadName != "shot.png" {
		t.Errorf("uploaded %q as %q", fb.uploaded, fb.uploadName)
	}

	body, ct = multipartBody(t, "other", "shot.png", "PNGDATA")
	req = httptest.NewRequest(http.MethodPost, "/b/feedback/i1/attachments", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file field code = %d, want 400", w.Code)
	}
}

func TestAttachmentDownloads(t *testing.T) {
	fb := newFeedback()
	fb.attachments = []*models.Attachment{{ID: "a1", FeedbackID: "i1", FileName: "notes.txt", ContentType: "text/plain", SizeBytes: 5, Checksum: "abc"}}
	r := newTestRouter(&fakeRoadmap{}, fb, nil)

	w := do(r, http.MethodGet, "/b/feedback/i1/attachments", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"file_name":"notes.txt"`) {
		t.Errorf("list = %d %s", w.Code, w.Body)
	}

	w = do(r, http.MethodGet, "/b/feedback/i1/attachments/a1", "")
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Errorf("stream = %d %q", w.Code, w.Body)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `"notes.txt"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	fb.downloadURL = "https://bucket.example.com/signed"
	w = do(r, http.MethodGet, "/b/feedback/i1/attachments/a1", "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != fb.downloadURL {
		t.Errorf("presigned = %d %q", w.Code, w.Header().Get("Location"))
	}

	if w := do(r, http.MethodGet, "/b/feedback/i1/attachments/zz", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing attachment code = %d, want 404", w.Code)
	}
	if w := do(r, http.MethodGet, "/b/feedback/nope/attachments/a1", ""); w.Code != http.StatusNotFound {
		t.Errorf("attachment on missing item code = %d, want 404", w.Code)
	}
}
