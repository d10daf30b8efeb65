package testutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/mapper"
	"github.com/dan-strohschein/aql-driver/protocol"
)

// DefaultServerBatchSize is the batch size used when a request sets none.
const DefaultServerBatchSize = 1000

var collectionScan = regexp.MustCompile(`^FOR doc IN ([A-Za-z0-9_\-]+) RETURN doc$`)

// Server is an in-process fake speaking the cursor, export, collection and
// version routes, with or without a /_db/{name} prefix.
type Server struct {
	http      *httptest.Server
	batchSize int
	username  string
	password  string

	mu          sync.Mutex
	collections map[string]*fakeCollection
	queries     map[string][]interface{}
	cursors     map[string]*fakeCursor
	nextID      uint64
	failures    []failure
	requests    []RecordedRequest
}

// RecordedRequest is one request seen by the server.
type RecordedRequest struct {
	Method   string
	Path     string
	Database string
	Query    url.Values
	Body     []byte
}

type fakeCollection struct {
	id   string
	name string
	kind mapper.CollectionType
	docs []map[string]interface{}
}

type fakeCursor struct {
	family    string
	rows      []interface{}
	pos       int
	batchSize int
	count     int
	withCount bool
}

type failure struct {
	method   string
	route    string
	status   int
	errorNum int
	message  string
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithServerBatchSize sets the batch size used when a request sets none
func WithServerBatchSize(n int) ServerOption {
	return func(s *Server) {
		s.batchSize = n
	}
}

// WithBasicAuth makes every route require the given credentials
func WithBasicAuth(username, password string) ServerOption {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// NewServer starts a fake server that is closed when t finishes.
func NewServer(t testing.TB, opts ...ServerOption) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		batchSize:   DefaultServerBatchSize,
		collections: make(map[string]*fakeCollection),
		queries:     make(map[string][]interface{}),
		cursors:     make(map[string]*fakeCursor),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(s.record, s.authenticate, s.injectFailure)
	s.routes(engine)
	s.routes(engine.Group("/_db/:db"))

	s.http = httptest.NewServer(engine)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes(r gin.IRoutes) {
	r.GET(protocol.PathVersion, s.handleVersion)
	r.GET(protocol.PathCollection+"/:name", s.handleCollection)
	r.POST(protocol.PathCursor, s.handleCreateCursor)
	r.PUT(protocol.PathCursor+"/:id", s.handleFetch("cursor"))
	r.DELETE(protocol.PathCursor+"/:id", s.handleDelete("cursor"))
	r.POST(protocol.PathExport, s.handleCreateExport)
	r.PUT(protocol.PathExport+"/:id", s.handleFetch("export"))
	r.DELETE(protocol.PathExport+"/:id", s.handleDelete("export"))
}

// URL returns the server base URL
func (s *Server) URL() string {
	return s.http.URL
}

// Close shuts the server down. It is safe to call more than once.
func (s *Server) Close() {
	s.http.Close()
}

// AddCollection registers a collection and its documents. Documents lacking
// _key, _id or _rev get generated values.
func (s *Server) AddCollection(name string, kind mapper.CollectionType, docs ...map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if _, ok := doc[mapper.AttrKey]; !ok {
			doc[mapper.AttrKey] = strconv.FormatInt(SequenceID(), 10)
		}
		if _, ok := doc[mapper.AttrID]; !ok {
			doc[mapper.AttrID] = fmt.Sprintf("%s/%v", name, doc[mapper.AttrKey])
		}
		if _, ok := doc[mapper.AttrRev]; !ok {
			doc[mapper.AttrRev] = "_" + RandomString(8)
		}
	}
	s.collections[name] = &fakeCollection{
		id:   strconv.FormatInt(SequenceID(), 10),
		name: name,
		kind: kind,
		docs: docs,
	}
}

// AddQuery registers the rows returned for an exact query text. Templates
// sent with bind variables match either their raw text or the text with
// the variables substituted.
func (s *Server) AddQuery(text string, rows ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows == nil {
		rows = []interface{}{}
	}
	s.queries[text] = rows
}

// FailNext makes the next request to method and route fail with a server
// error. route is matched against the path without database prefix, e.g.
// "/_api/cursor" or "/_api/cursor/12".
func (s *Server) FailNext(method, route string, status, errorNum int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{
		method:   method,
		route:    route,
		status:   status,
		errorNum: errorNum,
		message:  message,
	})
}

// Requests returns every request seen, oldest first
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CallsTo counts requests to method and the exact route
func (s *Server) CallsTo(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.Method == method && req.Path == route {
			n++
		}
	}
	return n
}

// CallsWithPrefix counts requests to method whose route starts with prefix
func (s *Server) CallsWithPrefix(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.Method == method && strings.HasPrefix(req.Path, prefix) {
			n++
		}
	}
	return n
}

// OpenCursors returns the number of server-side cursors still held
func (s *Server) OpenCursors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cursors)
}

func (s *Server) record(c *gin.Context) {
	body, _ := c.GetRawData()
	c.Request.Body = http.NoBody
	if len(body) > 0 {
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	path, database := splitDatabase(c.Request.URL.Path)
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:   c.Request.Method,
		Path:     path,
		Database: database,
		Query:    c.Request.URL.Query(),
		Body:     body,
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) authenticate(c *gin.Context) {
	if s.username == "" {
		c.Next()
		return
	}
	user, pass, ok := c.Request.BasicAuth()
	if !ok || user != s.username || pass != s.password {
		abortWithError(c, http.StatusUnauthorized, 11, "not authorized to execute this request")
		return
	}
	c.Next()
}

func (s *Server) injectFailure(c *gin.Context) {
	path, _ := splitDatabase(c.Request.URL.Path)

	s.mu.Lock()
	var hit *failure
	for i, f := range s.failures {
		if f.method == c.Request.Method && f.route == path {
			hit = &f
			s.failures = append(s.failures[:i:i], s.failures[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if hit != nil {
		abortWithError(c, hit.status, hit.errorNum, hit.message)
		return
	}
	c.Next()
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server":  "aql-testutil",
		"version": "3.11.0",
		"license": "community",
	})
}

func (s *Server) handleCollection(c *gin.Context) {
	name := c.Param("name")

	s.mu.Lock()
	coll, ok := s.collections[name]
	s.mu.Unlock()

	if !ok {
		abortWithError(c, http.StatusNotFound, protocol.ErrorNumDataSourceNotFound, "collection or view not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"error":    false,
		"code":     http.StatusOK,
		"id":       coll.id,
		"name":     coll.name,
		"type":     int(coll.kind),
		"status":   3,
		"isSystem": strings.HasPrefix(coll.name, "_"),
	})
}

func (s *Server) handleCreateCursor(c *gin.Context) {
	var req protocol.CursorRequest
	if err := bindBody(c, &req); err != nil {
		abortWithError(c, http.StatusBadRequest, 600, err.Error())
		return
	}

	s.mu.Lock()
	rows, status, errorNum, message := s.resolveQuery(req.Query, req.BindVars)
	s.mu.Unlock()
	if status != 0 {
		abortWithError(c, status, errorNum, message)
		return
	}

	s.openCursor(c, "cursor", rows, req.BatchSize, req.Count)
}

func (s *Server) handleCreateExport(c *gin.Context) {
	name := c.Query("collection")

	var req protocol.ExportRequest
	if err := bindBody(c, &req); err != nil {
		abortWithError(c, http.StatusBadRequest, 600, err.Error())
		return
	}

	s.mu.Lock()
	coll, ok := s.collections[name]
	var rows []interface{}
	if ok {
		rows = exportRows(coll.docs, req.Limit, req.Restrict)
	}
	s.mu.Unlock()

	if !ok {
		abortWithError(c, http.StatusNotFound, protocol.ErrorNumDataSourceNotFound, "collection or view not found")
		return
	}
	s.openCursor(c, "export", rows, req.BatchSize, req.Count)
}

func (s *Server) openCursor(c *gin.Context, family string, rows []interface{}, batchSize int, withCount bool) {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	cur := &fakeCursor{
		family:    family,
		rows:      rows,
		batchSize: batchSize,
		count:     len(rows),
		withCount: withCount,
	}

	batch := cur.next()
	body := gin.H{
		"error":   false,
		"code":    http.StatusCreated,
		"result":  batch,
		"hasMore": cur.pos < len(cur.rows),
		"cached":  false,
		"extra": gin.H{
			"stats": gin.H{"scannedFull": len(rows)},
		},
	}
	if withCount {
		body["count"] = cur.count
	}
	if cur.pos < len(cur.rows) {
		s.mu.Lock()
		s.nextID++
		id := strconv.FormatUint(s.nextID, 10)
		s.cursors[id] = cur
		s.mu.Unlock()
		body["id"] = id
	}
	c.JSON(http.StatusCreated, body)
}

func (s *Server) handleFetch(family string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		s.mu.Lock()
		cur, ok := s.cursors[id]
		if !ok || cur.family != family {
			s.mu.Unlock()
			abortWithError(c, http.StatusNotFound, protocol.ErrorNumCursorNotFound, "cursor not found")
			return
		}
		batch := cur.next()
		hasMore := cur.pos < len(cur.rows)
		if !hasMore {
			delete(s.cursors, id)
		}
		s.mu.Unlock()

		body := gin.H{
			"error":   false,
			"code":    http.StatusOK,
			"result":  batch,
			"hasMore": hasMore,
			"cached":  false,
		}
		if hasMore {
			body["id"] = id
		}
		if cur.withCount {
			body["count"] = cur.count
		}
		c.JSON(http.StatusOK, body)
	}
}

func (s *Server) handleDelete(family string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		s.mu.Lock()
		cur, ok := s.cursors[id]
		if ok && cur.family == family {
			delete(s.cursors, id)
		}
		s.mu.Unlock()

		if !ok || cur.family != family {
			abortWithError(c, http.StatusNotFound, protocol.ErrorNumCursorNotFound, "cursor not found")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"error": false, "code": http.StatusAccepted, "id": id})
	}
}

// resolveQuery returns the rows for text, or an error status. Callers hold s.mu.
func (s *Server) resolveQuery(text string, bindVars map[string]interface{}) ([]interface{}, int, int, string) {
	if rows, ok := s.queries[text]; ok {
		return rows, 0, 0, ""
	}

	resolved := substituteBindVars(text, bindVars)
	if rows, ok := s.queries[resolved]; ok {
		return rows, 0, 0, ""
	}

	if m := collectionScan.FindStringSubmatch(resolved); m != nil {
		coll, ok := s.collections[m[1]]
		if !ok {
			return nil, http.StatusNotFound, protocol.ErrorNumDataSourceNotFound,
				fmt.Sprintf("AQL: collection or view not found: %s", m[1])
		}
		rows := make([]interface{}, len(coll.docs))
		for i, doc := range coll.docs {
			rows[i] = doc
		}
		return rows, 0, 0, ""
	}

	if strings.Contains(resolved, "@") {
		return nil, http.StatusBadRequest, protocol.ErrorNumBindParameterMissing,
			"AQL: no value specified for declared bind parameter"
	}
	return nil, http.StatusBadRequest, protocol.ErrorNumQueryParse,
		fmt.Sprintf("AQL: syntax error, unexpected query %q", resolved)
}

func (cur *fakeCursor) next() []interface{} {
	end := cur.pos + cur.batchSize
	if end > len(cur.rows) {
		end = len(cur.rows)
	}
	batch := cur.rows[cur.pos:end]
	cur.pos = end
	if batch == nil {
		batch = []interface{}{}
	}
	return batch
}

// substituteBindVars replaces @@name with the raw value and @name with its
// JSON literal, longest names first.
func substituteBindVars(text string, bindVars map[string]interface{}) string {
	names := make([]string, 0, len(bindVars))
	for name := range bindVars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		value := bindVars[name]
		if strings.HasPrefix(name, "@") {
			text = strings.ReplaceAll(text, "@"+name, fmt.Sprint(value))
			continue
		}
		literal, err := json.Marshal(value)
		if err != nil {
			continue
		}
		text = strings.ReplaceAll(text, "@"+name, string(literal))
	}
	return text
}

func exportRows(docs []map[string]interface{}, limit int, restrict *protocol.ExportRestrict) []interface{} {
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	rows := make([]interface{}, len(docs))
	for i, doc := range docs {
		if restrict == nil {
			rows[i] = doc
			continue
		}
		fields := make(map[string]bool, len(restrict.Fields))
		for _, f := range restrict.Fields {
			fields[f] = true
		}
		out := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			if fields[k] == (restrict.Type == "include") {
				out[k] = v
			}
		}
		rows[i] = out
	}
	return rows
}

func splitDatabase(path string) (string, string) {
	if !strings.HasPrefix(path, "/_db/") {
		return path, ""
	}
	rest := strings.TrimPrefix(path, "/_db/")
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "/", rest
	}
	database, _ := url.PathUnescape(rest[:idx])
	return rest[idx:], database
}

func bindBody(c *gin.Context, v interface{}) error {
	body, err := c.GetRawData()
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func abortWithError(c *gin.Context, status, errorNum int, message string) {
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{
		Error:        true,
		Code:         status,
		ErrorNum:     errorNum,
		ErrorMessage: message,
	})
}
