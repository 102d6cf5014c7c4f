package lanehq

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://lanehq.test"

func newMockedClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(testBase+"/", "acme", append(opts, WithHTTPClient(hc))...)
}

func TestClient_RoadmapSendsTokenAndFilter(t *testing.T) {
	c := newMockedClient(t, WithToken("tok"))

	httpmock.RegisterResponder(http.MethodGet, testBase+"/api/v1/orgs/acme/boards/ideas/roadmap",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
			assert.Equal(t, "planned,done", req.URL.Query().Get("lanes"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"board_id": "b1",
				"revision": 7,
				"columns": []map[string]interface{}{
					{"lane": map[string]interface{}{"status": "planned", "index": 1}, "items": []map[string]interface{}{{"id": "f1", "position": 1024}}},
				},
			})
		})

	b, err := c.Roadmap(context.Background(), "ideas", "planned", "done")
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.Revision)
	require.NotNil(t, b.Column("planned"))
	assert.Equal(t, "f1", b.Column("planned").Items[0].ID)
	assert.Nil(t, b.Column("done"))
}

func TestClient_MoveBody(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBase+"/api/v1/orgs/acme/boards/ideas/roadmap/moves",
		func(req *http.Request) (*http.Response, error) {
			var d Drop
			require.NoError(t, json.NewDecoder(req.Body).Decode(&d))
			assert.Equal(t, Drop{ItemID: "f1", TargetLane: "done", TargetIndex: 2}, d)
			return httpmock.NewJsonResponse(http.StatusOK, MoveAck{Revision: 9, Placements: []Placement{{ItemID: "f1", Status: "done", Position: 3072}}})
		})

	ack, err := c.Move(context.Background(), "ideas", Drop{ItemID: "f1", TargetLane: "done", TargetIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(9), ack.Revision)
	assert.Len(t, ack.Placements, 1)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"unknown board", http.StatusNotFound, `{"error":"Board not found","state":"not_found"}`, ErrNotFound},
		{"anonymous", http.StatusUnauthorized, `{"error":"Authentication required"}`, ErrUnauthorized},
		{"missing scope", http.StatusForbidden, `{"error":"Insufficient scope"}`, ErrUnauthorized},
		{"unknown lane", http.StatusUnprocessableEntity, `{"error":"unknown lane"}`, ErrUnknownLane},
		{"conflict", http.StatusConflict, `{"error":"already archived"}`, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodPost, testBase+"/api/v1/orgs/acme/boards/ideas/roadmap/moves",
				httpmock.NewStringResponder(tt.status, tt.body))

			_, err := c.Move(context.Background(), "ideas", Drop{ItemID: "f1", TargetLane: "nope"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestClient_ServerErrorWithoutBody(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBase+"/api/v1/orgs/acme/changelog",
		httpmock.NewStringResponder(http.StatusBadGateway, "<html>bad gateway</html>"))

	_, err := c.Changelog(context.Background(), false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "lanehq: HTTP 502", apiErr.Error())
}

func TestClient_FeedbackAndReleases(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBase+"/api/v1/orgs/acme/boards/ideas/feedback",
		httpmock.NewJsonResponderOrPanic(http.StatusCreated, map[string]interface{}{
			"feedback": map[string]interface{}{"id": "f9", "title": "Dark mode", "status": "backlog"},
			"revision": 3,
		}))
	httpmock.RegisterResponder(http.MethodPost, testBase+"/api/v1/orgs/acme/boards/ideas/feedback/f9/vote",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"vote_count": 4, "revision": 4}))
	httpmock.RegisterResponder(http.MethodGet, testBase+"/api/v1/orgs/acme/boards/ideas/feedback",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "planned", req.URL.Query().Get("status"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"feedback":   []map[string]interface{}{{"id": "f9"}},
				"pagination": map[string]interface{}{"page": 1, "per_page": 20, "total": 31},
			})
		})
	httpmock.RegisterResponder(http.MethodPost, testBase+"/api/v1/orgs/acme/releases/r1/publish",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"id": "r1", "published_at": "2026-10-01T10:00:00Z"}))
	httpmock.RegisterResponder(http.MethodGet, testBase+"/api/v1/orgs/acme/changelog",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "true", req.URL.Query().Get("drafts"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"organization_id": "o1",
				"revision":        12,
				"releases":        []map[string]interface{}{{"id": "r2", "title": "1.1", "published_at": nil}},
			})
		})

	ctx := context.Background()

	it, rev, err := c.CreateFeedback(ctx, "ideas", "Dark mode", "")
	require.NoError(t, err)
	assert.Equal(t, "f9", it.ID)
	assert.Equal(t, int64(3), rev)

	votes, err := c.Upvote(ctx, "ideas", "f9")
	require.NoError(t, err)
	assert.Equal(t, 4, votes)

	items, total, err := c.ListFeedback(ctx, "ideas", "planned", 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 31, total)

	rel, err := c.PublishRelease(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, rel.IsDraft())

	cl, err := c.Changelog(ctx, true)
	require.NoError(t, err)
	require.Len(t, cl.Releases, 1)
	assert.True(t, cl.Releases[0].IsDraft())

	assert.Equal(t, 5, httpmock.GetTotalCallCount())
}
