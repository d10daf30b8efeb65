package main

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dan-strohschein/aql-driver/cursor"
	"github.com/dan-strohschein/aql-driver/query"
)

func registerQueryCmd(rootCmd *cobra.Command, v *viper.Viper) {
	queryCmd := &cobra.Command{
		Use:   "query <template>",
		Short: "runs a statement and prints each row as a JSON line",
		Example: `  aqlctl query 'FOR u IN @coll FILTER u.age > @age RETURN u' --ident coll=users --bind age=21
  aqlctl query 'FOR u IN users RETURN u' --max 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binds, _ := cmd.Flags().GetStringArray("bind")
			idents, _ := cmd.Flags().GetStringArray("ident")
			stmt, err := buildStatement(args[0], binds, idents)
			if err != nil {
				return err
			}

			c, err := newClient(v)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			cur, err := c.QueryValues(ctx, stmt, queryFlags(cmd))
			if err != nil {
				return err
			}
			return streamRows(ctx, cmd, cur, "rows")
		},
	}

	addQueryFlags(queryCmd)
	queryCmd.Flags().StringArray("bind", nil, "bind a value: name=value (JSON literals, else string)")
	queryCmd.Flags().StringArray("ident", nil, "bind an identifier such as a collection: name=value")
	queryCmd.Flags().Bool("server-side", false, "send the template and bind variables instead of resolved text")
	rootCmd.AddCommand(queryCmd)
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch-size", 0, "rows per round trip; 0 uses the server default")
	cmd.Flags().Int("max", 0, "stop after this many rows and release the cursor; 0 reads everything")
	cmd.Flags().Int("ttl", 0, "server-side cursor lifetime in seconds; 0 uses the default")
}

func queryFlags(cmd *cobra.Command) *cursor.QueryOptions {
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	ttl, _ := cmd.Flags().GetInt("ttl")
	return &cursor.QueryOptions{BatchSize: batchSize, TTL: ttl, Count: true}
}

// buildStatement parses name=value pairs and binds them to template.
func buildStatement(template string, binds, idents []string) (*query.Statement, error) {
	values := make(map[string]interface{}, len(binds)+len(idents))
	identNames := make([]string, 0, len(idents))

	for _, pair := range idents {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.Newf("--ident %q is not name=value", pair)
		}
		name = placeholderName(name)
		identNames = append(identNames, name)
		values[name] = value
	}
	for _, pair := range binds {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.Newf("--bind %q is not name=value", pair)
		}
		parsed, err := parseBindValue(value)
		if err != nil {
			return nil, errors.Wrapf(err, "--bind %s", name)
		}
		values[placeholderName(name)] = parsed
	}

	stmt := query.NewStatement(template, query.WithIdentifierPlaceholders(identNames...))
	if err := stmt.BindAll(values); err != nil {
		return nil, err
	}
	return stmt, nil
}

func placeholderName(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "@")
	return "@" + name
}

// parseBindValue reads integers, floats, booleans, null and JSON documents;
// anything else is a string.
func parseBindValue(raw string) (interface{}, error) {
	switch raw {
	case "null":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		var doc interface{}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, errors.Wrap(err, "invalid JSON document")
		}
		return doc, nil
	}
	return raw, nil
}

// streamRows writes every row of cur to stdout as a JSON line. The cursor is
// deleted when streaming stops before the server ran out of rows.
func streamRows[T any](ctx context.Context, cmd *cobra.Command, cur *cursor.Cursor[T], noun string) error {
	maxRows, _ := cmd.Flags().GetInt("max")
	start := time.Now()

	n, err := writeRows(ctx, cmd.OutOrStdout(), cur, maxRows, nil)
	if releaseErr := release(cur); releaseErr != nil && err == nil {
		err = releaseErr
	}
	if err != nil {
		return err
	}

	printSuccess(humanize.Comma(int64(n)) + " " + noun + " in " + time.Since(start).Round(time.Millisecond).String())
	return nil
}

func writeRows[T any](ctx context.Context, out io.Writer, cur *cursor.Cursor[T], maxRows int, onRow func()) (int, error) {
	enc := json.NewEncoder(out)
	n := 0
	for row, err := range cur.Rows(ctx) {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(row); err != nil {
			return n, err
		}
		n++
		if onRow != nil {
			onRow()
		}
		if maxRows > 0 && n >= maxRows {
			break
		}
	}
	return n, ctx.Err()
}

// release deletes the server-side cursor if one is still held. It uses a
// fresh context so an interrupt still frees the cursor.
func release[T any](cur *cursor.Cursor[T]) error {
	if _, ok := cur.ID(); !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cur.Delete(ctx); err != nil {
		return errors.Wrap(err, "release cursor")
	}
	printInfo("released server cursor")
	return nil
}
