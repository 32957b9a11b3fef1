package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/koppla/internal/model"
)

type capturedRequest struct {
	Method string
	Path   string
	Token  string
	Type   string
	Body   []byte
}

type fakeServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	routes   map[string]string
	status   int
}

func newFakeServer(t *testing.T, routes map[string]string) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{routes: routes, status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.requests = append(fs.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Token:  r.Header.Get(TokenHeader),
			Type:   r.Header.Get("Content-Type"),
			Body:   body,
		})
		status := fs.status
		fs.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			resp = "[]"
		}
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) last() capturedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[len(fs.requests)-1]
}

func newClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := New(url+"/projects/p1", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.com/p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestCheckCredentials(t *testing.T) {
	c, err := New("http://example.com/p", RequireToken(true))
	require.NoError(t, err)
	assert.Error(t, c.CheckCredentials())

	c, err = New("http://example.com/p", RequireToken(true), WithToken("secret"))
	require.NoError(t, err)
	assert.NoError(t, c.CheckCredentials())

	c, err = New("http://example.com/p")
	require.NoError(t, err)
	assert.NoError(t, c.CheckCredentials())
}

func TestLoadTypeRegistries(t *testing.T) {
	// "WzQsMl0=" is base64 of [4,2].
	_, srv := newFakeServer(t, map[string]string{
		"GET /projects/p1/node-types": `[{"id":"user","name":"User","fill_color":"#fff","stroke_color":"#000","stroke_width":1,"shape":1,"metadata":"u"}]`,
		"GET /projects/p1/edge-types": `[{"id":"e1","name":"member","stroke_color":"#00f","stroke_width":2,"line_dash":"WzQsMl0=","metadata":"m"},` +
			`{"id":"e2","name":"owner","stroke_color":"#f00","stroke_width":3,"line_dash":null,"metadata":""}]`,
	})
	c := newClient(t, srv.URL)

	nodeTypes, err := c.LoadNodeTypes(context.Background())
	require.NoError(t, err)
	edgeTypes, err := c.LoadEdgeTypes(context.Background())
	require.NoError(t, err)

	require.Len(t, nodeTypes, 1)
	assert.Equal(t, model.NodeType{
		ID: "user", Name: "User", FillColor: "#fff", StrokeColor: "#000",
		StrokeWidth: 1, Shape: model.NodeShape(1), Metadata: "u",
	}, nodeTypes[0])

	require.Len(t, edgeTypes, 2)
	assert.Equal(t, []float64{4, 2}, edgeTypes[0].LineDash)
	assert.Equal(t, "member", edgeTypes[0].Name)
	assert.Equal(t, []float64{}, edgeTypes[1].LineDash)
}

func TestLoadEdgeTypes_BadLineDashFallsBackToSolid(t *testing.T) {
	_, srv := newFakeServer(t, map[string]string{
		"GET /projects/p1/edge-types": `[{"id":"e1","name":"x","stroke_color":"","stroke_width":1,"line_dash":"!!notbase64","metadata":""}]`,
	})
	c := newClient(t, srv.URL)

	types, err := c.LoadEdgeTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, []float64{}, types[0].LineDash)
}

func TestLoadNodesAndEdges(t *testing.T) {
	_, srv := newFakeServer(t, map[string]string{
		"GET /projects/p1/nodes": `[{"id":"n1","name":"alice","type":"user","metadata":"","x":10,"y":20}]`,
		"GET /projects/p1/edges": `[{"id":"e1","type":"member","start_id":"n1","end_id":"n2"}]`,
	})
	c := newClient(t, srv.URL)

	nodes, err := c.LoadNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n1", nodes[0].ID)
	assert.Equal(t, 20.0, nodes[0].Y)

	edges, err := c.LoadEdges(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "n1", edges[0].StartID)
	assert.Equal(t, "n2", edges[0].EndID)
}

func TestCreateNodes_RequestShape(t *testing.T) {
	fs, srv := newFakeServer(t, map[string]string{
		"POST /projects/p1/create-nodes": `[{"temp_id":"t1","id":"n-42"}]`,
	})
	c := newClient(t, srv.URL, WithToken("secret"))

	refs, err := c.CreateNodes(context.Background(), []model.NodeRecord{
		{Handle: 7, ID: "t1", Name: "alice", Type: "user", X: 20, Y: 40},
	})
	require.NoError(t, err)
	assert.Equal(t, []model.CreatedRef{{TempID: "t1", ID: "n-42"}}, refs)

	req := fs.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "secret", req.Token)
	assert.Equal(t, "application/json", req.Type)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "create_nodes_body", req.Body)
}

func TestCreateEdges_RequestShape(t *testing.T) {
	fs, srv := newFakeServer(t, map[string]string{
		"POST /projects/p1/create-edges": `[{"temp_id":"t2","id":"e-1"}]`,
	})
	c := newClient(t, srv.URL)

	refs, err := c.CreateEdges(context.Background(), []model.EdgeRecord{
		{Handle: 3, ID: "t2", Type: "member", StartHandle: 1, EndHandle: 2, StartID: "n1", EndID: "n2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "e-1", refs[0].ID)

	req := fs.last()
	assert.Empty(t, req.Token)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "create_edges_body", req.Body)
}

func TestUpdateAndDelete(t *testing.T) {
	fs, srv := newFakeServer(t, nil)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.UpdateNodes(ctx, []model.NodeRecord{{ID: "n1", Name: "bob", Type: "user"}}))
	req := fs.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/projects/p1/update-nodes", req.Path)

	require.NoError(t, c.UpdateEdges(ctx, []model.EdgeRecord{{ID: "e1", Type: "member", StartID: "n1", EndID: "n2"}}))
	assert.Equal(t, "/projects/p1/update-edges", fs.last().Path)

	require.NoError(t, c.DeleteNodes(ctx, []string{"n1", "n2"}))
	req = fs.last()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/projects/p1/delete-nodes", req.Path)
	var ids []string
	require.NoError(t, json.Unmarshal(req.Body, &ids))
	assert.Equal(t, []string{"n1", "n2"}, ids)

	require.NoError(t, c.DeleteEdges(ctx, []string{"e1"}))
	assert.Equal(t, "/projects/p1/delete-edges", fs.last().Path)
}

func TestStatusError(t *testing.T) {
	fs, srv := newFakeServer(t, nil)
	fs.status = http.StatusForbidden
	c := newClient(t, srv.URL)

	_, err := c.CreateNodes(context.Background(), []model.NodeRecord{{ID: "t1"}})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Status)
	assert.Equal(t, "create-nodes", se.Path)
	assert.Equal(t, "boom", se.Body)
}

func TestLoadNodeTypes_PropagatesFailure(t *testing.T) {
	fs, srv := newFakeServer(t, nil)
	fs.status = http.StatusInternalServerError
	c := newClient(t, srv.URL)

	_, err := c.LoadNodeTypes(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}
