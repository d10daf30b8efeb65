package client_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dan-strohschein/aql-driver/client"
	"github.com/dan-strohschein/aql-driver/cursor"
	"github.com/dan-strohschein/aql-driver/mapper"
	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/query"
	"github.com/dan-strohschein/aql-driver/testutil"
	"github.com/dan-strohschein/aql-driver/transport/mock"
	"github.com/dan-strohschein/aql-driver/traversal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestExport_MissingCollectionNeverReachesExport(t *testing.T) {
	mt := mock.NewMockTransport()
	mt.EnqueueError(http.MethodGet, protocol.CollectionPath("ghosts"), http.StatusNotFound,
		protocol.ErrorNumDataSourceNotFound, "collection or view not found")

	opts := client.DefaultOptions()
	opts.Transport = mt
	opts.Logger = client.NewNoopLogger()
	c, err := client.NewClient(&opts)
	require.NoError(t, err)
	defer c.Close()

	cur, err := c.Export(context.Background(), "ghosts", nil)
	require.Error(t, err)
	assert.Nil(t, cur)

	var dbErr *client.DatabaseError
	require.True(t, errors.As(err, &dbErr), "got %T", err)
	assert.True(t, dbErr.IsNotFound())
	assert.Contains(t, dbErr.Message, "doesn't exist")
	assert.Equal(t, 0, mt.CallsTo(http.MethodPost, protocol.PathExport))
	assert.Equal(t, 1, mt.GetCallCount())
}

func TestExport_MissingCollectionAgainstServer(t *testing.T) {
	srv := testutil.NewServer(t)
	c := testutil.NewTestClient(t, srv, nil)

	_, err := c.Export(context.Background(), "ghosts", nil)

	var dbErr *client.DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.True(t, dbErr.IsNotFound())
	assert.Equal(t, http.StatusNotFound, dbErr.StatusCode)
	assert.Equal(t, 0, srv.CallsWithPrefix(http.MethodPost, protocol.PathExport))
}

func TestQuery_IteratesAllBatches(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.AddQuery("FOR i IN 1..2500 RETURN {n: i}", testutil.NumberedRows(2500)...)
	c := testutil.NewTestClient(t, srv, nil)
	ctx, _ := testutil.WithTimeout(t)

	stmt := query.NewStatement("FOR i IN 1..@max RETURN {n: i}")
	_, err := stmt.BindValue("@max", 2500)
	require.NoError(t, err)

	cur, err := c.Query(ctx, stmt, &cursor.QueryOptions{BatchSize: 1000, Count: true})
	require.NoError(t, err)

	count, ok := cur.Count()
	require.True(t, ok)
	assert.Equal(t, 2500, count)

	rows := testutil.Drain(t, ctx, cur)
	require.Len(t, rows, 2500)
	assert.EqualValues(t, 2499, rows[2499]["n"])

	_, hasID := cur.ID()
	assert.False(t, hasID)
	assert.Equal(t, cursor.EXHAUSTED, cur.State())
	assert.Equal(t, 3, cur.FetchCount())
	assert.Equal(t, 1, srv.CallsTo(http.MethodPost, protocol.PathCursor))
	assert.Equal(t, 2, srv.CallsWithPrefix(http.MethodPut, protocol.PathCursor+"/"))
	assert.Equal(t, 0, srv.OpenCursors())
}

func TestQuery_ServerError(t *testing.T) {
	srv := testutil.NewServer(t)
	c := testutil.NewTestClient(t, srv, nil)

	_, err := c.Query(context.Background(), query.NewStatement("FOR x IN RETURN"), nil)

	var curErr *cursor.CursorError
	require.True(t, errors.As(err, &curErr))
	assert.Equal(t, protocol.ErrorNumQueryParse, curErr.ErrorNum)
	assert.Equal(t, http.StatusBadRequest, curErr.StatusCode)
}

func TestQuery_UnboundPlaceholderNeverSent(t *testing.T) {
	srv := testutil.NewServer(t)
	c := testutil.NewTestClient(t, srv, nil)

	_, err := c.Query(context.Background(), query.NewStatement("FOR u IN users FILTER u.id == @id RETURN u"), nil)

	var stmtErr *query.StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Empty(t, srv.Requests())
}

func TestQuery_ServerSideBinding(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.AddQuery(`FOR u IN users FILTER u.name == "Theo" RETURN u`, map[string]interface{}{"name": "Theo"})
	c := testutil.NewTestClient(t, srv, func(o *client.ClientOptions) {
		o.ServerSideBinding = true
	})
	ctx, _ := testutil.WithTimeout(t)

	stmt := query.NewStatement("FOR u IN @coll FILTER u.name == @name RETURN u", query.WithIdentifierPlaceholders("@coll"))
	require.NoError(t, stmt.BindAll(map[string]interface{}{"@coll": "users", "@name": "Theo"}))

	cur, err := c.Query(ctx, stmt, nil)
	require.NoError(t, err)
	rows := testutil.Drain(t, ctx, cur)
	require.Len(t, rows, 1)

	var body protocol.CursorRequest
	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.NoError(t, protocol.NewCodec().Decode(reqs[0].Body, &body))
	assert.Equal(t, "FOR u IN @@coll FILTER u.name == @name RETURN u", body.Query)
	assert.Equal(t, map[string]interface{}{"@coll": "users", "name": "Theo"}, body.BindVars)
}

func TestQueryAs_DecodesRows(t *testing.T) {
	type user struct {
		Key  string `json:"_key"`
		Name string `json:"name"`
	}

	srv := testutil.NewServer(t)
	srv.AddCollection("users", mapper.CollectionTypeDocument,
		testutil.NewUserFactory("users").Build(testutil.WithKey("a"), testutil.WithField("name", "Ann")),
		testutil.NewUserFactory("users").Build(testutil.WithKey("b"), testutil.WithField("name", "Ben")),
	)
	c := testutil.NewTestClient(t, srv, nil)
	ctx, _ := testutil.WithTimeout(t)

	cur, err := client.QueryAs[user](ctx, c, query.NewStatement("FOR doc IN users RETURN doc"), nil)
	require.NoError(t, err)

	users := testutil.Drain(t, ctx, cur)
	assert.Equal(t, []user{{Key: "a", Name: "Ann"}, {Key: "b", Name: "Ben"}}, users)
}

func TestAllDocuments_Edges(t *testing.T) {
	srv := testutil.NewServer(t, testutil.WithServerBatchSize(1))
	srv.AddCollection("knows", mapper.CollectionTypeEdge,
		testutil.NewEdgeFactory("knows").Chain("users/a", "users/b", "users/c")...)
	c := testutil.NewTestClient(t, srv, nil)
	ctx, _ := testutil.WithTimeout(t)

	coll, err := c.Collection(ctx, "knows")
	require.NoError(t, err)
	assert.True(t, coll.IsEdge())

	cur, err := c.AllDocuments(ctx, coll, nil)
	require.NoError(t, err)

	rows := testutil.Drain(t, ctx, cur)
	require.Len(t, rows, 2)
	edge, ok := rows[0].(*mapper.Edge)
	require.True(t, ok, "got %T", rows[0])
	assert.Equal(t, "users/a", edge.From())
	assert.Equal(t, "users/b", edge.To())
	assert.Equal(t, "knows", edge.Collection())
	assert.Equal(t, 2, cur.FetchCount())
}

func TestExport_RestrictAndLimit(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.AddCollection("users", mapper.CollectionTypeDocument, testutil.BuildUsers("users", 5)...)
	c := testutil.NewTestClient(t, srv, nil)
	ctx, _ := testutil.WithTimeout(t)

	cur, err := c.Export(ctx, "users", &cursor.ExportOptions{
		Limit:     3,
		BatchSize: 2,
		Restrict:  &protocol.ExportRestrict{Type: "include", Fields: []string{"_key", "email"}},
	})
	require.NoError(t, err)
	assert.Equal(t, cursor.KindExport, cur.Kind())

	rows := testutil.Drain(t, ctx, cur)
	require.Len(t, rows, 3)
	doc := rows[0].(*mapper.Document)
	assert.Len(t, doc.Attributes(), 2)
	assert.NotEmpty(t, doc.Key())

	assert.Equal(t, 1, srv.CallsTo(http.MethodPost, protocol.PathExport))
	assert.Equal(t, 1, srv.CallsWithPrefix(http.MethodPut, protocol.PathExport+"/"))
	assert.Equal(t, 0, srv.CallsWithPrefix(http.MethodPut, protocol.PathCursor))
}

func TestTraverse(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.AddQuery("FOR v, e, p IN 1..2 OUTBOUND 'users/a' knows RETURN {vertex: v, edge: e, path: p}",
		map[string]interface{}{"vertex": map[string]interface{}{"_id": "users/b"}},
		map[string]interface{}{"vertex": map[string]interface{}{"_id": "users/c"}},
	)
	c := testutil.NewTestClient(t, srv, nil)
	ctx, _ := testutil.WithTimeout(t)

	cur, err := c.Traverse(ctx, traversal.Spec{
		StartVertex:     "users/a",
		EdgeCollections: []string{"knows"},
		MinDepth:        1,
		MaxDepth:        2,
	}, nil)
	require.NoError(t, err)

	rows := testutil.Drain(t, ctx, cur)
	require.Len(t, rows, 2)
	assert.Equal(t, "users/c", rows[1]["vertex"].(map[string]interface{})["_id"])

	_, err = c.Traverse(ctx, traversal.Spec{Graph: "social"}, nil)
	var inv *query.InvalidParameterError
	assert.True(t, errors.As(err, &inv))
}

func TestCursor_DeleteReleasesServerCursor(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.AddQuery("FOR i IN 1..5 RETURN i", 1, 2, 3, 4, 5)
	c := testutil.NewTestClient(t, srv, nil)
	ctx, _ := testutil.WithTimeout(t)

	cur, err := c.QueryValues(ctx, query.NewStatement("FOR i IN 1..5 RETURN i"), &cursor.QueryOptions{BatchSize: 2})
	require.NoError(t, err)

	rows := testutil.DrainN(t, ctx, cur, 2)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, srv.OpenCursors())

	deleted, err := cur.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 0, srv.OpenCursors())
	assert.Equal(t, cursor.DELETED, cur.State())

	deleted, err = cur.Delete(ctx)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 1, srv.CallsWithPrefix(http.MethodDelete, protocol.PathCursor+"/"))
}

func TestClient_DatabaseAndAuth(t *testing.T) {
	srv := testutil.NewServer(t, testutil.WithBasicAuth("root", "secret"))
	srv.AddCollection("users", mapper.CollectionTypeDocument, testutil.BuildUsers("users", 1)...)

	denied := testutil.NewTestClient(t, srv, nil)
	_, err := denied.Version(context.Background())
	var authErr *protocol.TransportError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	assert.Equal(t, protocol.ErrorCodeAuthFailed, authErr.Code)

	c := testutil.NewTestClient(t, srv, func(o *client.ClientOptions) {
		o.Database = "social"
		o.Username = "root"
		o.Password = "secret"
	})
	ctx, _ := testutil.WithTimeout(t)

	version, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aql-testutil", version.Server)
	require.NoError(t, c.Ping(ctx))

	coll, err := c.Collection(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "users", coll.Name)
	assert.False(t, coll.IsEdge())

	for _, req := range srv.Requests()[1:] {
		assert.Equal(t, "social", req.Database, "%s %s", req.Method, req.Path)
	}
}

func TestClient_HooksObserveRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	metricsHook, err := client.NewMetricsHook(reg)
	require.NoError(t, err)

	var transitions []cursor.StateTransition
	srv := testutil.NewServer(t)
	srv.AddQuery("RETURN 1", 1)
	c := testutil.NewTestClient(t, srv, func(o *client.ClientOptions) {
		o.Hooks = []client.Hook{metricsHook}
		o.MetricsRegisterer = reg
		o.OnCursorStateChange = func(tr cursor.StateTransition) {
			transitions = append(transitions, tr)
		}
	})
	ctx, _ := testutil.WithTimeout(t)

	cur, err := c.QueryValues(ctx, query.NewStatement("RETURN 1"), nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(1)}, testutil.Drain(t, ctx, cur))

	_, err = c.Collection(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, []string{"metrics"}, c.GetHooks())
	expected := `
# HELP aql_client_requests_total number of API requests by operation and HTTP status.
# TYPE aql_client_requests_total counter
aql_client_requests_total{operation="collection.get",status="404"} 1
aql_client_requests_total{operation="cursor.create",status="201"} 1
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "aql_client_requests_total"))
	require.Len(t, transitions, 1)
	assert.Equal(t, cursor.EXHAUSTED, transitions[0].To)
}

func TestClient_ClosedRejectsRequests(t *testing.T) {
	srv := testutil.NewServer(t)
	c := testutil.NewTestClient(t, srv, nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())

	_, err := c.Query(context.Background(), query.NewStatement("RETURN 1"), nil)
	var connErr *client.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "CLIENT_CLOSED", connErr.Code)
	assert.Empty(t, srv.Requests())
}
