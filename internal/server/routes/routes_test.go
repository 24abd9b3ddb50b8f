package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zaldivarmena/mindy/internal/queue"
	"github.com/zaldivarmena/mindy/internal/server/middleware"
	"github.com/zaldivarmena/mindy/pkg/ai"
	"github.com/zaldivarmena/mindy/pkg/leaselock"
	"github.com/zaldivarmena/mindy/pkg/mindmap"
	"github.com/zaldivarmena/mindy/pkg/store"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const biologyMap = `{
	"nodes": [
		{"id": "root", "label": "Biology", "type": "main"},
		{"id": "cells", "label": "Cells", "type": "primary"}
	],
	"connections": [{"id": "e1", "source": "root", "target": "cells"}]
}`

type memStore struct {
	mu      sync.Mutex
	records map[string]store.StudyContent
	nextID  int64
	updates int
	failed  map[int64]string
}

func newMemStore() *memStore {
	return &memStore{records: map[string]store.StudyContent{}, failed: map[int64]string{}}
}

func (m *memStore) put(courseID, studyType, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := store.StudyContent{ID: m.nextID, CourseID: courseID, Type: studyType, Status: store.StatusReady}
	if content != "" {
		rec.Content = json.RawMessage(content)
	} else {
		rec.Status = store.StatusGenerating
	}
	m.records[courseID+"|"+studyType] = rec
}

func (m *memStore) content(courseID, studyType string) json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[courseID+"|"+studyType].Content
}

func (m *memStore) CreateStudyContent(_ context.Context, courseID, studyType string) (int64, error) {
	m.put(courseID, studyType, "")
	return m.nextID, nil
}

func (m *memStore) GetStudyContent(_ context.Context, courseID, studyType string) (store.StudyContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[courseID+"|"+studyType]
	if !ok {
		return store.StudyContent{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) UpdateStudyContent(_ context.Context, courseID, studyType string, content []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[courseID+"|"+studyType]
	if !ok {
		return 0, store.ErrNotFound
	}
	rec.Content = append(json.RawMessage(nil), content...)
	m.records[courseID+"|"+studyType] = rec
	m.updates++
	return rec.ID, nil
}

func (m *memStore) CompleteStudyContent(context.Context, int64, []byte) error { return nil }

func (m *memStore) FailStudyContent(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	return nil
}

type fakeLocker struct {
	busy bool
	keys []string
}

func (l *fakeLocker) WithLease(ctx context.Context, key string, _ leaselock.Options, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.busy {
		return leaselock.ErrBusy
	}
	return fn(ctx)
}

type fakePublisher struct {
	err  error
	msgs [][]byte
}

func (p *fakePublisher) PublishFIFO(_ context.Context, _ string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, data)
	return nil
}

type fakeExports struct {
	putErr error
	stored map[string][]byte
}

func (f *fakeExports) PutExport(_ context.Context, courseID string, png []byte) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	key := "mindmaps/" + courseID + "/1.png"
	f.stored[key] = png
	return key, nil
}

func (f *fakeExports) DownloadLink(_ context.Context, key string) (string, error) {
	return "https://files.example.com/" + key, nil
}

type testEnv struct {
	e      *echo.Echo
	store  *memStore
	locker *fakeLocker
	queue  *fakePublisher
	app    *middleware.App
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:  newMemStore(),
		locker: &fakeLocker{},
		queue:  &fakePublisher{},
	}
	env.app = &middleware.App{
		Store:  env.store,
		Locker: env.locker,
		Queue:  env.queue,
	}

	e := echo.New()
	e.Validator = middleware.NewValidator()
	e.Use(middleware.AppContextMiddleware(env.app))

	e.POST("/api/study-type", GetStudyTypeHandler)
	e.POST("/api/study-type-content", GenerateStudyTypeContentHandler)
	e.POST("/api/update-study-type", UpdateStudyTypeHandler)
	e.GET("/api/courses/:course_id/mindmap", GetMindMapHandler)
	e.POST("/api/courses/:course_id/mindmap/nodes", AddNodeHandler)
	e.PATCH("/api/courses/:course_id/mindmap/nodes/:node_id", EditNodeHandler)
	e.DELETE("/api/courses/:course_id/mindmap/nodes/:node_id", DeleteNodeHandler)
	e.POST("/api/courses/:course_id/mindmap/edges", ConnectNodesHandler)
	e.POST("/api/courses/:course_id/mindmap/export", ExportMindMapHandler)
	env.e = e
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type graphBody struct {
	Nodes []struct {
		ID       string            `json:"id"`
		Label    string            `json:"label"`
		Type     string            `json:"type"`
		Position *mindmap.Position `json:"position"`
	} `json:"nodes"`
	Connections []struct {
		Source string `json:"source"`
		Target string `json:"target"`
	} `json:"connections"`
}

type mindMapBody struct {
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	Graph      graphBody `json:"graph"`
	RootID     string    `json:"root_id"`
	Warnings   []string  `json:"warnings"`
	Regenerate bool      `json:"regenerate"`
}

const mindMapType = string(ai.StudyTypeMindMap)

func TestGetMindMapHandler(t *testing.T) {
	env := newTestEnv()
	env.store.put("c1", mindMapType, biologyMap)

	rec := env.do(http.MethodGet, "/api/courses/c1/mindmap?width=1000", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[mindMapBody](t, rec)
	assert.Equal(t, "root", body.RootID)
	assert.False(t, body.Regenerate)
	assert.Empty(t, body.Warnings)
	require.Len(t, body.Graph.Nodes, 2)
	for _, n := range body.Graph.Nodes {
		assert.NotNil(t, n.Position, "node %s has no position", n.ID)
	}
	require.Len(t, body.Graph.Connections, 1)
	assert.Equal(t, "root", body.Graph.Connections[0].Source)
}

func TestGetMindMapHandlerStates(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		store      bool
		query      string
		wantStatus int
		check      func(t *testing.T, body mindMapBody)
	}{
		{
			name:       "missing record",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "still generating",
			store:      true,
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, body mindMapBody) {
				assert.Equal(t, string(store.StatusGenerating), body.Status)
				assert.Empty(t, body.Graph.Nodes)
			},
		},
		{
			name:       "quiz stored as mind map",
			store:      true,
			content:    `[{"question":"What is a cell?","options":["a","b"],"answer":"a"}]`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body mindMapBody) {
				assert.True(t, body.Regenerate)
				assert.NotEmpty(t, body.Graph.Nodes)
			},
		},
		{
			name:       "dangling edge is reported",
			store:      true,
			content:    `{"nodes":[{"id":"a","label":"A"},{"id":"b","label":"B"}],"connections":[{"id":"x","source":"a","target":"ghost"},{"id":"y","source":"a","target":"b"}]}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body mindMapBody) {
				require.Len(t, body.Warnings, 1)
				assert.Contains(t, body.Warnings[0], "ghost")
				assert.Len(t, body.Graph.Connections, 1)
			},
		},
		{
			name:       "width too small",
			store:      true,
			content:    biologyMap,
			query:      "?width=10",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "width not a number",
			store:      true,
			content:    biologyMap,
			query:      "?width=wide",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			if tt.store {
				env.store.put("c1", mindMapType, tt.content)
			}
			rec := env.do(http.MethodGet, "/api/courses/c1/mindmap"+tt.query, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, decode[mindMapBody](t, rec))
			}
		})
	}
}

type editBody struct {
	Message string        `json:"message"`
	Notice  bool          `json:"notice"`
	Node    *mindmap.Node `json:"node"`
	Edge    *mindmap.Edge `json:"edge"`
	Removed *int          `json:"removed"`
	Graph   graphBody     `json:"graph"`
}

func storedGraph(t *testing.T, env *testEnv) *mindmap.Graph {
	t.Helper()
	content := env.store.content("c1", mindMapType)
	require.NotEmpty(t, content)
	g, report := mindmap.NormalizeWithReport(content)
	require.False(t, report.Fallback, report.Reason)
	return g
}

func TestAddNodeHandler(t *testing.T) {
	env := newTestEnv()
	env.store.put("c1", mindMapType, biologyMap)

	rec := env.do(http.MethodPost, "/api/courses/c1/mindmap/nodes", `{"parent_id":"cells","label":"Mitosis"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[editBody](t, rec)
	require.NotNil(t, body.Node)
	assert.Equal(t, "Mitosis", body.Node.Label)
	assert.Equal(t, mindmap.TypeSecondary, body.Node.Type)
	assert.Len(t, body.Graph.Nodes, 3)
	assert.Equal(t, []string{leaselock.MindMapKey("c1")}, env.locker.keys)

	g := storedGraph(t, env)
	require.Equal(t, 3, g.Len())
	for _, n := range g.Nodes {
		assert.True(t, n.Positioned(), "stored node %s has no position", n.ID)
	}
	assert.NotNil(t, g.Node(body.Node.ID))
}

func TestEditHandlersErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		store      string
		busy       bool
		wantStatus int
		wantNotice bool
	}{
		{
			name:       "missing parent",
			method:     http.MethodPost,
			path:       "/api/courses/c1/mindmap/nodes",
			body:       `{"parent_id":"ghost","label":"x"}`,
			store:      biologyMap,
			wantStatus: http.StatusNotFound,
			wantNotice: true,
		},
		{
			name:       "parent id required",
			method:     http.MethodPost,
			path:       "/api/courses/c1/mindmap/nodes",
			body:       `{"label":"x"}`,
			store:      biologyMap,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "edit missing node",
			method:     http.MethodPatch,
			path:       "/api/courses/c1/mindmap/nodes/ghost",
			body:       `{"label":"x"}`,
			store:      biologyMap,
			wantStatus: http.StatusNotFound,
			wantNotice: true,
		},
		{
			name:       "delete missing node",
			method:     http.MethodDelete,
			path:       "/api/courses/c1/mindmap/nodes/ghost",
			store:      biologyMap,
			wantStatus: http.StatusNotFound,
			wantNotice: true,
		},
		{
			name:       "connect missing target",
			method:     http.MethodPost,
			path:       "/api/courses/c1/mindmap/edges",
			body:       `{"source":"root","target":"ghost"}`,
			store:      biologyMap,
			wantStatus: http.StatusNotFound,
			wantNotice: true,
		},
		{
			name:       "no mind map",
			method:     http.MethodPost,
			path:       "/api/courses/c1/mindmap/nodes",
			body:       `{"parent_id":"root"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "lease held elsewhere",
			method:     http.MethodPost,
			path:       "/api/courses/c1/mindmap/nodes",
			body:       `{"parent_id":"root"}`,
			store:      biologyMap,
			busy:       true,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.locker.busy = tt.busy
			if tt.store != "" {
				env.store.put("c1", mindMapType, tt.store)
			}

			rec := env.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantNotice, decode[editBody](t, rec).Notice)
			assert.Zero(t, env.store.updates)
		})
	}
}

func TestEditNodeHandler(t *testing.T) {
	env := newTestEnv()
	env.store.put("c1", mindMapType, biologyMap)

	rec := env.do(http.MethodPatch, "/api/courses/c1/mindmap/nodes/cells", `{"label":"Cell biology","description":"Structure of cells"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[editBody](t, rec)
	require.NotNil(t, body.Node)
	assert.Equal(t, "Cell biology", body.Node.Label)
	assert.Equal(t, "Cell biology", storedGraph(t, env).Node("cells").Label)
}

func TestDeleteNodeHandler(t *testing.T) {
	env := newTestEnv()
	env.store.put("c1", mindMapType, biologyMap)

	rec := env.do(http.MethodDelete, "/api/courses/c1/mindmap/nodes/cells", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[editBody](t, rec)
	require.NotNil(t, body.Removed)
	assert.Equal(t, 1, *body.Removed)

	g := storedGraph(t, env)
	assert.Equal(t, 1, g.Len())
	assert.Nil(t, g.Node("cells"))
	assert.Empty(t, g.Edges)
}

func TestConnectNodesHandler(t *testing.T) {
	env := newTestEnv()
	env.store.put("c1", mindMapType, biologyMap)

	rec := env.do(http.MethodPost, "/api/courses/c1/mindmap/nodes", `{"parent_id":"root","label":"Genetics"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decode[editBody](t, rec).Node
	require.NotNil(t, added)

	rec = env.do(http.MethodPost, "/api/courses/c1/mindmap/edges", `{"source":"cells","target":"`+added.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edge := decode[editBody](t, rec).Edge
	require.NotNil(t, edge)
	assert.Equal(t, "cells", edge.Source)
	assert.Equal(t, added.ID, edge.Target)

	assert.Len(t, storedGraph(t, env).Edges, 3)
}

func TestGenerateStudyTypeContentHandler(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/study-type-content", `{"courseId":"c1","type":"mindmap","chapters":"1. Cells\n2. Genetics"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, env.queue.msgs, 1)
	var msg queue.GenerateStudyContentMsg
	require.NoError(t, json.Unmarshal(env.queue.msgs[0], &msg))
	assert.Equal(t, "c1", msg.CourseID)
	assert.Equal(t, mindMapType, msg.StudyType)
	assert.Contains(t, msg.Prompt, "Genetics")

	rec2, err := env.store.GetStudyContent(context.Background(), "c1", mindMapType)
	require.NoError(t, err)
	assert.Equal(t, rec2.ID, msg.RecordID)
	assert.Equal(t, store.StatusGenerating, rec2.Status)
}

func TestGenerateStudyTypeContentHandlerErrors(t *testing.T) {
	t.Run("unknown study type", func(t *testing.T) {
		env := newTestEnv()
		rec := env.do(http.MethodPost, "/api/study-type-content", `{"courseId":"c1","type":"essay","chapters":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, env.queue.msgs)
	})

	t.Run("missing chapters", func(t *testing.T) {
		env := newTestEnv()
		rec := env.do(http.MethodPost, "/api/study-type-content", `{"courseId":"c1","type":"quiz"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("publish failure marks the record failed", func(t *testing.T) {
		env := newTestEnv()
		env.queue.err = errors.New("broker down")
		rec := env.do(http.MethodPost, "/api/study-type-content", `{"courseId":"c1","type":"quiz","chapters":"x"}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Len(t, env.store.failed, 1)
	})
}

func TestStudyTypeHandlers(t *testing.T) {
	env := newTestEnv()
	env.store.put("c1", string(ai.StudyTypeQuiz), `[{"question":"q","answer":"a"}]`)

	rec := env.do(http.MethodPost, "/api/study-type", `{"courseId":"c1","studyType":"quiz"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[store.StudyContent](t, rec)
	assert.JSONEq(t, `[{"question":"q","answer":"a"}]`, string(got.Content))

	rec = env.do(http.MethodPost, "/api/study-type", `{"courseId":"c2","studyType":"quiz"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/update-study-type", `{"courseId":"c1","studyType":"quiz","content":[{"question":"new"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"question":"new"}]`, string(env.store.content("c1", string(ai.StudyTypeQuiz))))

	rec = env.do(http.MethodPost, "/api/update-study-type", `{"courseId":"c1","studyType":"quiz"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/update-study-type", `{"courseId":"c9","studyType":"quiz","content":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestExportMindMapHandler(t *testing.T) {
	t.Run("inline download", func(t *testing.T) {
		env := newTestEnv()
		env.store.put("c1", mindMapType, biologyMap)

		rec := env.do(http.MethodPost, "/api/courses/c1/mindmap/export?download=true&pixel_ratio=1", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "mindmap.png")
		assert.True(t, strings.HasPrefix(rec.Body.String(), string(pngMagic)))
	})

	t.Run("stored with link", func(t *testing.T) {
		env := newTestEnv()
		exports := &fakeExports{stored: map[string][]byte{}}
		env.app.Exports = exports
		env.store.put("c1", mindMapType, biologyMap)

		rec := env.do(http.MethodPost, "/api/courses/c1/mindmap/export?pixel_ratio=1", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode[exportResponse](t, rec)
		assert.Equal(t, "mindmaps/c1/1.png", body.Key)
		assert.Equal(t, "https://files.example.com/mindmaps/c1/1.png", body.URL)
		require.Contains(t, exports.stored, body.Key)
		assert.Equal(t, body.Bytes, len(exports.stored[body.Key]))
	})

	t.Run("upload failure", func(t *testing.T) {
		env := newTestEnv()
		env.app.Exports = &fakeExports{putErr: errors.New("s3 down")}
		env.store.put("c1", mindMapType, biologyMap)

		rec := env.do(http.MethodPost, "/api/courses/c1/mindmap/export?pixel_ratio=1", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("still generating", func(t *testing.T) {
		env := newTestEnv()
		env.store.put("c1", mindMapType, "")

		rec := env.do(http.MethodPost, "/api/courses/c1/mindmap/export", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("bad pixel ratio", func(t *testing.T) {
		env := newTestEnv()
		env.store.put("c1", mindMapType, biologyMap)

		rec := env.do(http.MethodPost, "/api/courses/c1/mindmap/export?pixel_ratio=9", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
