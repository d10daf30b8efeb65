package query

import (
	"regexp"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStatement_IntegerBinding(t *testing.T) {
	stmt := NewStatement("FOR u IN users FILTER u.id == @id RETURN u")

	ok, err := stmt.BindValue("@id", 50)
	require.NoError(t, err)
	require.True(t, ok)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "FOR u IN users FILTER u.id == 50 RETURN u", aql)
}

func TestStatement_StringBinding(t *testing.T) {
	stmt := NewStatement("FOR u IN users FILTER u.id == @id && u.name == @name RETURN u")
	_, err := stmt.BindValue("@id", 50)
	require.NoError(t, err)
	_, err = stmt.BindValue("@name", "Theo")
	require.NoError(t, err)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Contains(t, aql, "'Theo'")
	assert.Equal(t, "FOR u IN users FILTER u.id == 50 && u.name == 'Theo' RETURN u", aql)
}

func TestStatement_Placeholders(t *testing.T) {
	stmt := NewStatement("RETURN [@b, @a, @b, @a_1]")

	assert.Equal(t, []string{"@b", "@a", "@a_1"}, stmt.Placeholders())
	assert.True(t, stmt.HasAliases())
	assert.False(t, NewStatement("RETURN 1").HasAliases())
}

func TestStatement_BindUnknownPlaceholder(t *testing.T) {
	stmt := NewStatement("RETURN @a")

	ok, err := stmt.BindValue("@missing", 1)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, stmt.Binder().Len())
}

func TestStatement_BindWithoutAtSign(t *testing.T) {
	stmt := NewStatement("RETURN @a")

	ok, err := stmt.BindValue("a", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, stmt.Binder().Has("@a"))
}

func TestStatement_BindInvalidValue(t *testing.T) {
	stmt := NewStatement("RETURN @a")

	ok, err := stmt.BindValue("@a", func() {})
	assert.False(t, ok)

	var inv *InvalidParameterError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "E_INVALID_PARAMETER", inv.Code)
	assert.Equal(t, "@a", inv.Parameter)
	assert.False(t, stmt.Binder().Has("@a"))
}

func TestStatement_UnboundPlaceholder(t *testing.T) {
	stmt := NewStatement("FOR u IN users FILTER u.a == @a && u.b == @b RETURN u")
	_, err := stmt.BindValue("@a", 1)
	require.NoError(t, err)

	_, err = stmt.ToAQL()
	var stmtErr *StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Equal(t, "E_UNBOUND_PARAMETER", stmtErr.Code)
	assert.Equal(t, "@b", stmtErr.Parameter)
	assert.Contains(t, stmtErr.Error(), "@b")

	_, _, err = stmt.ServerSide()
	assert.True(t, errors.As(err, &stmtErr))
}

func TestStatement_LiteralFormatting(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"float", 2.5, "2.5"},
		{"whole float", 2.0, "2.0"},
		{"small float", 0.000001, "0.000001"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"null", nil, "null"},
		{"negative int", -7, "-7"},
		{"uint", uint32(7), "7"},
		{"string", "x", "'x'"},
		{"quote", "O'Brien", `'O\'Brien'`},
		{"backslash", `a\b`, `'a\\b'`},
		{"array", []int{1, 2}, "[1,2]"},
		{"nested array", []interface{}{1, []string{"a"}}, `[1,["a"]]`},
		{"object", map[string]interface{}{"k": 1}, `{"k":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := NewStatement("RETURN @v")
			_, err := stmt.BindValue("@v", tt.value)
			require.NoError(t, err)

			aql, err := stmt.ToAQL()
			require.NoError(t, err)
			assert.Equal(t, "RETURN "+tt.want, aql)
		})
	}
}

func TestStatement_CollectionIsUnquoted(t *testing.T) {
	stmt := NewStatement("FOR doc IN @collection RETURN doc")
	_, err := stmt.BindValue("@collection", "users")
	require.NoError(t, err)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "FOR doc IN users RETURN doc", aql)
}

func TestStatement_IdentifierDesignation(t *testing.T) {
	stmt := NewStatement("FOR v IN 1..1 OUTBOUND @start @edges RETURN v", WithIdentifierPlaceholders("edges"))
	_, err := stmt.BindValue("@start", "users/1")
	require.NoError(t, err)
	_, err = stmt.BindValue("@edges", "knows")
	require.NoError(t, err)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "FOR v IN 1..1 OUTBOUND 'users/1' knows RETURN v", aql)
	assert.True(t, stmt.IsIdentifierPlaceholder("@edges"))
	assert.False(t, stmt.IsIdentifierPlaceholder("@start"))
}

func TestStatement_ExplicitIdentifier(t *testing.T) {
	stmt := NewStatement("FOR d IN @coll RETURN d")
	_, err := stmt.BindValue("@coll", Identifier("orders"))
	require.NoError(t, err)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "FOR d IN orders RETURN d", aql)
}

func TestStatement_InvalidIdentifier(t *testing.T) {
	stmt := NewStatement("FOR doc IN @collection RETURN doc")

	_, err := stmt.BindValue("@collection", "users RETURN 1 //")
	var inv *InvalidParameterError
	assert.True(t, errors.As(err, &inv))

	_, err = stmt.BindValue("@collection", 2.5)
	assert.True(t, errors.As(err, &inv))
}

func TestStatement_IdentifierAcceptedKinds(t *testing.T) {
	accepted := []struct {
		value interface{}
		want  string
	}{
		{"users", "FOR doc IN users RETURN doc"},
		{42, "FOR doc IN 42 RETURN doc"},
		{true, "FOR doc IN true RETURN doc"},
		{Identifier("orders"), "FOR doc IN orders RETURN doc"},
	}
	for _, tt := range accepted {
		stmt := NewStatement("FOR doc IN @collection RETURN doc")
		ok, err := stmt.BindValue("@collection", tt.value)
		require.NoError(t, err, "%v", tt.value)
		require.True(t, ok)

		aql, err := stmt.ToAQL()
		require.NoError(t, err)
		assert.Equal(t, tt.want, aql)
	}

	rejected := []interface{}{
		nil,
		2.5,
		[]string{"a", "b"},
		map[string]interface{}{"name": "users"},
	}
	for _, v := range rejected {
		stmt := NewStatement("FOR doc IN @collection RETURN doc")
		ok, err := stmt.BindValue("@collection", v)

		var inv *InvalidParameterError
		assert.True(t, errors.As(err, &inv), "%v should be rejected", v)
		assert.False(t, ok)
		assert.False(t, stmt.Binder().Has("@collection"))
	}
}

func TestStatement_WholeTokenSubstitution(t *testing.T) {
	stmt := NewStatement("RETURN [@id, @idx, @id]")
	_, err := stmt.BindValue("@id", 1)
	require.NoError(t, err)
	_, err = stmt.BindValue("@idx", 2)
	require.NoError(t, err)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "RETURN [1, 2, 1]", aql)
}

func TestStatement_SubstitutionIsNotRescanned(t *testing.T) {
	stmt := NewStatement("RETURN [@a, @b]")
	_, err := stmt.BindValue("@a", "@b")
	require.NoError(t, err)
	_, err = stmt.BindValue("@b", 2)
	require.NoError(t, err)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "RETURN ['@b', 2]", aql)
}

func TestStatement_RebindOverwrites(t *testing.T) {
	stmt := NewStatement("RETURN @a")
	_, _ = stmt.BindValue("@a", 1)
	_, _ = stmt.BindValue("@a", 2)

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "RETURN 2", aql)
}

func TestStatement_BindAll(t *testing.T) {
	stmt := NewStatement("RETURN [@a, @b]")
	require.NoError(t, stmt.BindAll(map[string]interface{}{"a": 1, "@b": "x"}))

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "RETURN [1, 'x']", aql)

	assert.Error(t, stmt.BindAll(map[string]interface{}{"@zzz": 1}))
}

func TestStatement_ServerSide(t *testing.T) {
	stmt := NewStatement("FOR doc IN @collection FILTER doc.age > @age && doc.tags == @tags RETURN doc")
	_, _ = stmt.BindValue("@collection", "users")
	_, _ = stmt.BindValue("@age", 30)
	_, _ = stmt.BindValue("@tags", []string{"a"})

	text, vars, err := stmt.ServerSide()
	require.NoError(t, err)
	assert.Equal(t, "FOR doc IN @@collection FILTER doc.age > @age && doc.tags == @tags RETURN doc", text)
	assert.Equal(t, "users", vars["@collection"])
	assert.Equal(t, int64(30), vars["age"])
	assert.JSONEq(t, `["a"]`, string(vars["tags"].(json.RawMessage)))
}

func TestStatement_NoPlaceholders(t *testing.T) {
	stmt := NewStatement("RETURN 1")

	aql, err := stmt.ToAQL()
	require.NoError(t, err)
	assert.Equal(t, "RETURN 1", aql)
}

var identChars = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func placeholderNames() *rapid.Generator[[]string] {
	return rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z][a-z0-9_]{0,6}`), 1, 6, rapid.ID[string])
}

func primitive() *rapid.Generator[interface{}] {
	return rapid.OneOf(
		rapid.Map(rapid.Int64(), func(i int64) interface{} { return i }),
		rapid.Map(rapid.Float64Range(-1e9, 1e9), func(f float64) interface{} { return f }),
		rapid.Map(rapid.Bool(), func(b bool) interface{} { return b }),
		rapid.Map(rapid.String(), func(s string) interface{} { return s }),
	)
}

func TestStatement_BindingCompletenessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := placeholderNames().Draw(t, "names")
		parts := make([]string, len(names))
		for i, n := range names {
			if !identChars.MatchString(n) {
				t.Fatalf("generator produced %q", n)
			}
			parts[i] = "x." + n + " == @" + n
		}
		stmt := NewStatement("FOR x IN c FILTER " + strings.Join(parts, " && ") + " RETURN x")

		for _, n := range names {
			v := primitive().Draw(t, n)
			if ok, err := stmt.BindValue("@"+n, v); err != nil || !ok {
				t.Fatalf("bind %s: %v %v", n, ok, err)
			}
		}

		first, err := stmt.ToAQL()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		second, _ := stmt.ToAQL()
		if first != second {
			t.Fatalf("resolution not repeatable: %q vs %q", first, second)
		}

		// Strip string literals, whose content may legitimately contain @tokens.
		stripped := regexp.MustCompile(`'(?:[^'\\]|\\.)*'`).ReplaceAllString(first, "''")
		for _, n := range names {
			if regexp.MustCompile(`@` + n + `\b`).MatchString(stripped) {
				t.Fatalf("placeholder @%s survived in %q", n, first)
			}
		}
	})
}

func TestStatement_MissingBindProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := placeholderNames().Draw(t, "names")
		tokens := make([]string, len(names))
		for i, n := range names {
			tokens[i] = "@" + n
		}
		stmt := NewStatement("RETURN [" + strings.Join(tokens, ", ") + "]")

		skip := rapid.IntRange(0, len(names)-1).Draw(t, "skip")
		for i, n := range names {
			if i != skip {
				stmt.BindValue(n, i)
			}
		}

		_, err := stmt.ToAQL()
		var stmtErr *StatementError
		if !errors.As(err, &stmtErr) {
			t.Fatalf("expected StatementError, got %v", err)
		}
		if stmtErr.Parameter != tokens[skip] {
			t.Fatalf("expected %s named, got %s", tokens[skip], stmtErr.Parameter)
		}
	})
}
