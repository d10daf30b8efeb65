// Package traversal builds graph traversal statements that run through a
// plain statement cursor.
package traversal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dan-strohschein/aql-driver/query"
)

// Direction is the edge direction followed from the start vertex.
type Direction string

const (
	Outbound Direction = "OUTBOUND"
	Inbound  Direction = "INBOUND"
	Any      Direction = "ANY"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	switch d {
	case Outbound, Inbound, Any:
		return true
	}
	return false
}

var graphName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-]*$`)

// Spec describes a traversal over a named graph or a set of edge collections.
type Spec struct {
	// StartVertex is the _id of the first vertex, e.g. "users/1"
	StartVertex string

	// Graph names a stored graph. Ignored when EdgeCollections is set.
	Graph string

	// EdgeCollections traverses an anonymous graph
	EdgeCollections []string

	// Direction defaults to Outbound
	Direction Direction

	// MinDepth and MaxDepth bound the path length; MaxDepth defaults to 1
	MinDepth int
	MaxDepth int

	// Limit caps the number of rows; 0 means no limit
	Limit int
}

func (s Spec) validate() error {
	switch {
	case s.StartVertex == "":
		return query.ErrInvalidParameter("@startVertex", s.StartVertex, "start vertex is empty")
	case s.Graph == "" && len(s.EdgeCollections) == 0:
		return query.ErrInvalidParameter("@graph", s.Graph, "graph or edge collections required")
	case len(s.EdgeCollections) == 0 && !graphName.MatchString(s.Graph):
		return query.ErrInvalidParameter("@graph", s.Graph, "invalid graph name")
	case s.Direction != "" && !s.Direction.Valid():
		return query.ErrInvalidParameter("@direction", string(s.Direction), "direction must be OUTBOUND, INBOUND or ANY")
	case s.MinDepth < 0 || s.MaxDepth < 0 || s.Limit < 0:
		return query.ErrInvalidParameter("@maxDepth", s.MaxDepth, "depths and limit must not be negative")
	case s.MaxDepth != 0 && s.MaxDepth < s.MinDepth:
		return query.ErrInvalidParameter("@maxDepth", s.MaxDepth, fmt.Sprintf("max depth below min depth %d", s.MinDepth))
	}
	return nil
}

func (s Spec) direction() Direction {
	if s.Direction == "" {
		return Outbound
	}
	return s.Direction
}

// Text returns the statement template for s. The direction is a keyword
// and is written inline; the graph name is a value placeholder and edge
// collections are identifier placeholders.
func (s Spec) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FOR v, e, p IN @minDepth..@maxDepth %s @startVertex ", s.direction())
	if len(s.EdgeCollections) > 0 {
		for i := range s.EdgeCollections {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@edges%d", i)
		}
	} else {
		b.WriteString("GRAPH @graph")
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT @limit")
	}
	b.WriteString(" RETURN {vertex: v, edge: e, path: p}")
	return b.String()
}

// Statement returns the bound traversal statement.
func (s Spec) Statement() (*query.Statement, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	maxDepth := s.MaxDepth
	if maxDepth == 0 {
		maxDepth = max(1, s.MinDepth)
	}

	idents := make([]string, 0, len(s.EdgeCollections))
	for i := range s.EdgeCollections {
		idents = append(idents, fmt.Sprintf("@edges%d", i))
	}
	stmt := query.NewStatement(s.Text(), query.WithIdentifierPlaceholders(idents...))

	values := map[string]interface{}{
		"@minDepth":    s.MinDepth,
		"@maxDepth":    maxDepth,
		"@startVertex": s.StartVertex,
	}
	if len(s.EdgeCollections) > 0 {
		for i, c := range s.EdgeCollections {
			values[fmt.Sprintf("@edges%d", i)] = c
		}
	} else {
		values["@graph"] = s.Graph
	}
	if s.Limit > 0 {
		values["@limit"] = s.Limit
	}

	if err := stmt.BindAll(values); err != nil {
		return nil, err
	}
	return stmt, nil
}
