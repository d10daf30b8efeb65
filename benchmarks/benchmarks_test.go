package benchmarks

import (
	"context"
	"fmt"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/cursor"
	"github.com/dan-strohschein/aql-driver/mapper"
	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/query"
	"github.com/dan-strohschein/aql-driver/testutil"
	"github.com/dan-strohschein/aql-driver/traversal"
)

const benchTemplate = "FOR u IN @collection FILTER u.age > @age && u.name == @name && u.active == @active LIMIT @limit RETURN u"

func benchValues() map[string]interface{} {
	return map[string]interface{}{
		"collection": "users",
		"age":        21,
		"name":       "o'hara",
		"active":     true,
		"limit":      100,
	}
}

// BenchmarkStatementToAQL measures binding and client-side resolution
func BenchmarkStatementToAQL(b *testing.B) {
	values := benchValues()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		stmt := query.NewStatement(benchTemplate)
		if err := stmt.BindAll(values); err != nil {
			b.Fatalf("Bind failed: %v", err)
		}
		if _, err := stmt.ToAQL(); err != nil {
			b.Fatalf("ToAQL failed: %v", err)
		}
	}
}

// BenchmarkStatementServerSide measures building bind variables
func BenchmarkStatementServerSide(b *testing.B) {
	values := benchValues()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		stmt := query.NewStatement(benchTemplate)
		if err := stmt.BindAll(values); err != nil {
			b.Fatalf("Bind failed: %v", err)
		}
		if _, _, err := stmt.ServerSide(); err != nil {
			b.Fatalf("ServerSide failed: %v", err)
		}
	}
}

// BenchmarkPlaceholderScan compares cached and uncached template scans
func BenchmarkPlaceholderScan(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("RETURN [")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "@p%d, ", i)
	}
	sb.WriteString("null]")
	text := sb.String()

	b.Run("Cached", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			query.NewStatement(text)
		}
	})

	b.Run("Unique", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			query.NewStatement(fmt.Sprintf("%s // %d", text, i))
		}
	})
}

// BenchmarkTraversalStatement measures building traversal text
func BenchmarkTraversalStatement(b *testing.B) {
	spec := traversal.Spec{
		StartVertex:     "users/1",
		EdgeCollections: []string{"knows", "follows"},
		Direction:       traversal.Any,
		MinDepth:        1,
		MaxDepth:        3,
		Limit:           50,
	}
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		stmt, err := spec.Statement()
		if err != nil {
			b.Fatalf("Statement failed: %v", err)
		}
		if _, err := stmt.ToAQL(); err != nil {
			b.Fatalf("ToAQL failed: %v", err)
		}
	}
}

// BenchmarkDecodeCursor measures decoding a cursor batch
func BenchmarkDecodeCursor(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		body, err := json.Marshal(map[string]interface{}{
			"result":  testutil.BuildUsers("users", size),
			"hasMore": true,
			"id":      "12345",
			"count":   size * 10,
		})
		if err != nil {
			b.Fatalf("Marshal failed: %v", err)
		}
		codec := protocol.NewCodec()

		b.Run(fmt.Sprintf("Rows%d", size), func(b *testing.B) {
			b.SetBytes(int64(len(body)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := codec.DecodeCursor(body); err != nil {
					b.Fatalf("DecodeCursor failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkRowMapping measures turning raw rows into documents and edges
func BenchmarkRowMapping(b *testing.B) {
	user, _ := json.Marshal(testutil.NewUserFactory("users").Build())
	edge, _ := json.Marshal(testutil.NewEdgeFactory("knows").Connect("users/1", "users/2"))

	b.Run("Document", func(b *testing.B) {
		mapRow := mapper.RowsOf("users", mapper.CollectionTypeDocument)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := mapRow(user); err != nil {
				b.Fatalf("map failed: %v", err)
			}
		}
	})

	b.Run("Edge", func(b *testing.B) {
		mapRow := mapper.RowsOf("knows", mapper.CollectionTypeEdge)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := mapRow(edge); err != nil {
				b.Fatalf("map failed: %v", err)
			}
		}
	})
}

// BenchmarkCursorIteration measures draining a cursor from the fake server
// at several batch sizes.
func BenchmarkCursorIteration(b *testing.B) {
	const rows = 1000
	h := testutil.NewBenchmarkHelper(b)
	h.Server().AddQuery("FOR n IN numbers RETURN n", testutil.NumberedRows(rows)...)
	ctx := context.Background()

	for _, batchSize := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("Batch%d", batchSize), func(b *testing.B) {
			h.ResetTimer()
			for i := 0; i < b.N; i++ {
				cur, err := h.Client().Query(ctx, query.NewStatement("FOR n IN numbers RETURN n"),
					&cursor.QueryOptions{BatchSize: batchSize})
				if err != nil {
					b.Fatalf("Query failed: %v", err)
				}
				n := 0
				for _, err := range cur.Rows(ctx) {
					if err != nil {
						b.Fatalf("iteration failed: %v", err)
					}
					n++
				}
				if n != rows {
					b.Fatalf("got %d rows, want %d", n, rows)
				}
			}
		})
	}
}

// BenchmarkExport measures a bulk export of a document collection
func BenchmarkExport(b *testing.B) {
	h := testutil.NewBenchmarkHelper(b)
	h.Server().AddCollection("users", mapper.CollectionTypeDocument, testutil.BuildUsers("users", 500)...)
	ctx := context.Background()

	h.ResetTimer()
	for i := 0; i < b.N; i++ {
		cur, err := h.Client().Export(ctx, "users", &cursor.ExportOptions{BatchSize: 100})
		if err != nil {
			b.Fatalf("Export failed: %v", err)
		}
		if _, err := cur.All(ctx); err != nil {
			b.Fatalf("drain failed: %v", err)
		}
	}
}
