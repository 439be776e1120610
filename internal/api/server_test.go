package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/auth"
	"github.com/dharsanguruparan/straymandu/internal/config"
	"github.com/dharsanguruparan/straymandu/internal/feed"
	"github.com/dharsanguruparan/straymandu/internal/model"
	"github.com/dharsanguruparan/straymandu/internal/notify"
	"github.com/dharsanguruparan/straymandu/internal/storage"
	"github.com/dharsanguruparan/straymandu/internal/workflow"
)

type fakeMedia struct {
	keys []string
}

func (m *fakeMedia) UploadImage(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	return "https://media.example.com/straymandu-media/" + key, nil
}

type testEnv struct {
	handler http.Handler
	store   *storage.MemoryStore
	broker  *feed.MemoryBroker
	media   *fakeMedia
	issuer  *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Address:             ":0",
		MaxImageSize:        1 << 20,
		AllowedImages:       []string{"image/jpeg", "image/png", "image/webp"},
		SubmitRatePerMinute: 60,
		SubmitBurst:         5,
	}
	store := storage.NewMemoryStore()
	store.PutProfile(model.Profile{ID: "org-1", Kind: model.ProfileOrganization, DisplayName: "Sneha's Care"})
	store.PutProfile(model.Profile{ID: "org-2", Kind: model.ProfileOrganization, DisplayName: "KAT Centre", MonthlyRescues: 4})
	store.PutTeam(model.Team{ID: "team-1", Name: "Rescue One", OrgID: "org-1"})
	store.PutTeam(model.Team{ID: "team-2", Name: "KAT Van", OrgID: "org-2"})

	broker := feed.NewMemoryBroker(zap.NewNop())
	media := &fakeMedia{}
	issuer := auth.NewIssuer([]byte("test-secret"), "straymandu", time.Hour)
	svc := workflow.New(store, notify.NewDirect(store), broker, store, zap.NewNop())
	srv := New(cfg, Deps{
		Workflow:      svc,
		Notifications: store,
		Teams:         store,
		Directory:     store,
		Broker:        broker,
		Media:         media,
		Issuer:        issuer,
	}, zap.NewNop())
	return &testEnv{handler: srv.Handler(), store: store, broker: broker, media: media, issuer: issuer}
}

func (e *testEnv) token(t *testing.T, uid string, role auth.Role) string {
	t.Helper()
	tok, err := e.issuer.Issue(uid, role)
	require.NoError(t, err)
	return tok
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func submission(lat, lon float64) workflow.Submission {
	return workflow.Submission{
		Name:      "Kalu",
		Breed:     "Mixed",
		Condition: "Injured",
		Location:  model.Location{Latitude: lat, Longitude: lon, Address: "Thamel"},
		ImageURLs: []string{"https://cdn.example.com/kalu.jpg"},
	}
}

func (e *testEnv) submit(t *testing.T, volunteer string, sub workflow.Submission) *model.Report {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/reports", e.token(t, volunteer, auth.RoleVolunteer), sub)
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var r model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &r))
	return &r
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestSubmitRequiresVolunteer(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodPost, "/reports", "", submission(27.7, 85.3))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	code, _ = env.do(t, http.MethodPost, "/reports", env.token(t, "org-1", auth.RoleOrganization), submission(27.7, 85.3))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/reports", "garbage", submission(27.7, 85.3))
	assert.Equal(t, http.StatusUnauthorized, code)

	bad := submission(0, 0)
	code, resp = env.do(t, http.MethodPost, "/reports", env.token(t, "vol-1", auth.RoleVolunteer), bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "location")

	r := env.submit(t, "vol-1", submission(27.7, 85.3))
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Nil(t, r.RescuerID)
}

func TestSubmitRateLimited(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "vol-1", auth.RoleVolunteer)
	for i := 0; i < 5; i++ {
		code, _ := env.do(t, http.MethodPost, "/reports", tok, submission(27.7, 85.3))
		require.Equal(t, http.StatusCreated, code)
	}
	code, _ := env.do(t, http.MethodPost, "/reports", tok, submission(27.7, 85.3))
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = env.do(t, http.MethodPost, "/reports", env.token(t, "vol-2", auth.RoleVolunteer), submission(27.7, 85.3))
	assert.Equal(t, http.StatusCreated, code)
}

func TestClaimStatusNotificationFlow(t *testing.T) {
	env := newTestEnv(t)
	rep := env.submit(t, "vol-1", submission(27.7172, 85.324))
	org1 := env.token(t, "org-1", auth.RoleOrganization)
	org2 := env.token(t, "org-2", auth.RoleOrganization)
	vol := env.token(t, "vol-1", auth.RoleVolunteer)

	code, _ := env.do(t, http.MethodPost, "/reports/"+rep.ID+"/status", org1, map[string]string{"status": "ongoing"})
	assert.Equal(t, http.StatusConflict, code, "status change before claim")

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/claim", vol, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := env.do(t, http.MethodPost, "/reports/"+rep.ID+"/claim", org1, nil)
	require.Equal(t, http.StatusOK, code)
	var claimed model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &claimed))
	assert.Equal(t, model.StatusAcknowledged, claimed.Status)
	assert.Equal(t, model.UnassignedTeam, claimed.AssignedTeam)

	code, resp = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/claim", org2, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "report already claimed", resp.Message)

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/status", org2, map[string]string{"status": "ongoing"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/status", org1, map[string]string{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/status", org1, map[string]string{"status": "ongoing"})
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/status", org1, map[string]string{"status": "acknowledged"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = env.do(t, http.MethodPost, "/reports/missing/claim", org1, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = env.do(t, http.MethodGet, "/notifications", vol, nil)
	require.Equal(t, http.StatusOK, code)
	var list notificationList
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Unread)
	n := list.Items[0]
	assert.Equal(t, rep.ID, n.ReportID)
	assert.Equal(t, model.StatusOngoing, n.NewStatus)
	assert.Contains(t, n.Desc, "Sneha's Care")

	code, _ = env.do(t, http.MethodPost, "/notifications/"+n.ID+"/read", org1, nil)
	assert.Equal(t, http.StatusNotFound, code, "only the recipient can mark it read")

	code, _ = env.do(t, http.MethodPost, "/notifications/"+n.ID+"/read", vol, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = env.do(t, http.MethodPost, "/notifications/read-all", vol, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":0}`, string(resp.Data))
}

func TestAssignTeam(t *testing.T) {
	env := newTestEnv(t)
	rep := env.submit(t, "vol-1", submission(27.7172, 85.324))
	org1 := env.token(t, "org-1", auth.RoleOrganization)

	code, _ := env.do(t, http.MethodPost, "/reports/"+rep.ID+"/claim", org1, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/team", org1, map[string]string{"teamId": "team-2"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/team", org1, map[string]string{"teamId": "nope"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/reports/"+rep.ID+"/team", org1, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := env.do(t, http.MethodPost, "/reports/"+rep.ID+"/team", org1, map[string]string{"teamId": "team-1"})
	require.Equal(t, http.StatusOK, code)
	var r model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &r))
	assert.Equal(t, "Rescue One", r.AssignedTeam)
	assert.Equal(t, "team-1", r.AssignedTeamID)
	assert.Equal(t, model.StatusAcknowledged, r.Status)

	code, resp = env.do(t, http.MethodGet, "/teams", org1, nil)
	require.Equal(t, http.StatusOK, code)
	var teams []model.Team
	require.NoError(t, json.Unmarshal(resp.Data, &teams))
	require.Len(t, teams, 1)
	assert.Equal(t, "team-1", teams[0].ID)
}

func TestListNearSortsByDistance(t *testing.T) {
	env := newTestEnv(t)
	far := env.submit(t, "vol-1", submission(27.6710, 85.4298))  // Bhaktapur
	near := env.submit(t, "vol-2", submission(27.7150, 85.3120)) // Thamel

	code, resp := env.do(t, http.MethodGet, "/reports?near=27.7172,85.3240", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, near.ID, list[0].ID)
	assert.Equal(t, far.ID, list[1].ID)
	require.NotNil(t, list[0].DistanceKm)
	assert.Less(t, *list[0].DistanceKm, *list[1].DistanceKm)

	code, resp = env.do(t, http.MethodGet, "/reports?near=27.7172,85.3240&radiusKm=3", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, near.ID, list[0].ID)

	code, _ = env.do(t, http.MethodGet, "/reports?sort=distance", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodGet, "/reports?near=north", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodGet, "/reports?status=lost", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodGet, "/reports/"+far.ID+"?near=27.7172,85.3240", "", nil)
	require.Equal(t, http.StatusOK, code)
	var one model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &one))
	require.NotNil(t, one.DistanceKm)
	assert.Greater(t, *one.DistanceKm, 5.0)
}

func TestListNearAntipodalReport(t *testing.T) {
	env := newTestEnv(t)
	rep := env.submit(t, "vol-1", submission(-10, -160))

	code, resp := env.do(t, http.MethodGet, "/reports?near=10,20", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)
	var list []model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	require.NotNil(t, list[0].DistanceKm)
	assert.InDelta(t, math.Pi*6371.0, *list[0].DistanceKm, 0.1)

	code, resp = env.do(t, http.MethodGet, "/reports?near=10,20&radiusKm=20100", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)

	code, resp = env.do(t, http.MethodGet, "/reports/"+rep.ID+"?near=10,20", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestRespondJSONUnencodablePayload(t *testing.T) {
	srv := New(&config.Config{SubmitRatePerMinute: 60, SubmitBurst: 5}, Deps{}, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.respondJSON(rec, http.StatusOK, map[string]float64{"distanceKm": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	assert.False(t, resp.Success)
	assert.Equal(t, "failed to update", resp.Message)
}

func TestListMine(t *testing.T) {
	env := newTestEnv(t)
	mine := env.submit(t, "vol-1", submission(27.7, 85.3))
	env.submit(t, "vol-2", submission(27.7, 85.3))

	code, _ := env.do(t, http.MethodGet, "/reports?mine=1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp := env.do(t, http.MethodGet, "/reports?mine=1", env.token(t, "vol-1", auth.RoleVolunteer), nil)
	require.Equal(t, http.StatusOK, code)
	var list []model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	org := env.token(t, "org-1", auth.RoleOrganization)
	code, resp = env.do(t, http.MethodGet, "/reports?mine=1", org, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestExportWorkbook(t *testing.T) {
	env := newTestEnv(t)
	rep := env.submit(t, "vol-1", submission(27.7, 85.3))
	org := env.token(t, "org-1", auth.RoleOrganization)
	code, _ := env.do(t, http.MethodPost, "/reports/"+rep.ID+"/claim", org, nil)
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/reports/export.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+org)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "straymandu-cases.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Cases")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rep.ID, rows[1][0])
}

func TestLeaderboardAndProfile(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodGet, "/leaderboard?period=monthly", "", nil)
	require.Equal(t, http.StatusOK, code)
	var board []model.Profile
	require.NoError(t, json.Unmarshal(resp.Data, &board))
	require.Len(t, board, 2)
	assert.Equal(t, "org-2", board[0].ID)

	code, _ = env.do(t, http.MethodGet, "/leaderboard?period=weekly", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodGet, "/profiles/org-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	var p model.Profile
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, "Sneha's Care", p.DisplayName)

	code, _ = env.do(t, http.MethodGet, "/profiles/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestMediaUpload(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "vol-1", auth.RoleVolunteer)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

	body, contentType := multipartBody(t, "file", "dog.png", png)
	req := httptest.NewRequest(http.MethodPost, "/media", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.media.keys, 1)
	assert.True(t, strings.HasPrefix(env.media.keys[0], "reports/vol-1/"))
	assert.True(t, strings.HasSuffix(env.media.keys[0], ".png"))

	body, contentType = multipartBody(t, "file", "notes.txt", []byte("just some text"))
	req = httptest.NewRequest(http.MethodPost, "/media", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.media.keys, 1)
}

func TestStreamDeliversMatchingEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/reports/stream?status=pending", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return env.broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	rep := env.submit(t, "vol-1", submission(27.7, 85.3))

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event: created", lines[0])
	assert.Contains(t, lines[1], rep.ID)
}
