package xmldb_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/xmldb"
	"github.com/birdie-ai/xmlstore/xmlmodel"
	"github.com/birdie-ai/xmlstore/xquery"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	Book struct {
		Title  string
		Author string
		Year   int
	}

	Poem struct {
		Title string
		Lines int
	}

	Draft struct {
		Title string
	}

	Shelf struct {
		Name  string
		Books []string
	}

	fakeStore struct {
		collections map[string]*fakeCollection
		err         error
		calls       int
	}

	fakeCollection struct {
		fragments []string
		err       error
		queries   []string
	}
)

func (Book) XMLSerializable() {}
func (Poem) XMLSerializable() {}
func (Shelf) XMLSerializable() {}

func (s *fakeStore) Collection(_ context.Context, path string) (xmldb.Collection, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.collections[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xmldb.ErrCollectionNotFound, path)
	}
	return c, nil
}

func (c *fakeCollection) Query(_ context.Context, query string) ([]xmldb.Fragment, error) {
	c.queries = append(c.queries, query)
	if c.err != nil {
		return nil, c.err
	}
	fragments := make([]xmldb.Fragment, len(c.fragments))
	for i, f := range c.fragments {
		fragments[i] = xmldb.Text(f)
	}
	return fragments, nil
}

const novels = "/db/bookshop/novels"

func TestExecuteFragmentFaultIsolation(t *testing.T) {
	ctx, logs := newLogContext(t)
	store := newStore(novels,
		`<books><book><title>1984</title><author>Orwell</author><year>1949</year></book></books>`,
		`<books><book><title>broken</title`,
	)

	got := xmldb.Execute[Book](ctx, store, xquery.Build(novels, "book", nil, "", ""), novels)

	want := []Book{{Title: "1984", Author: "Orwell", Year: 1949}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "mapping query result") {
		t.Fatalf("fragment failure not logged:\n%s", logs.String())
	}
}

func TestExecuteOrder(t *testing.T) {
	ctx, logs := newLogContext(t)
	store := newStore(novels,
		`<books><book><title>a</title></book><book><title>b</title></book></books>`,
		`<book><title>c</title><year>unknown</year></book>`,
		`<book><title>d</title></book>`,
		`<exist:result xmlns:exist="http://exist.sourceforge.net/NS/exist"><shelf><book><title>e</title></book></shelf><book><title>f</title></book></exist:result>`,
		`<books/>`,
	)

	got := xmldb.Execute[Book](ctx, store, "for $item in collection('/db/bookshop/novels') return $item", novels)

	want := []Book{{Title: "a"}, {Title: "b"}, {Title: "d"}, {Title: "e"}, {Title: "f"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "fragment=1") {
		t.Fatalf("malformed value not logged:\n%s", logs.String())
	}
}

func TestExecuteStoreFailures(t *testing.T) {
	t.Run("collection not found", func(t *testing.T) {
		ctx, logs := newLogContext(t)
		store := newStore(novels)

		got := xmldb.Execute[Book](ctx, store, "for $item in collection('/db/none') return $item", "/db/none")
		if got != nil {
			t.Fatalf("got %v; want no records", got)
		}
		if !strings.Contains(logs.String(), "resolving collection") {
			t.Fatalf("failure not logged:\n%s", logs.String())
		}
	})

	t.Run("store unavailable", func(t *testing.T) {
		ctx, _ := newLogContext(t)
		store := &fakeStore{err: errors.New("connection refused")}

		if got := xmldb.Execute[Book](ctx, store, "query", novels); got != nil {
			t.Fatalf("got %v; want no records", got)
		}
	})

	t.Run("query submission", func(t *testing.T) {
		ctx, logs := newLogContext(t)
		store := newStore(novels)
		store.collections[novels].err = fmt.Errorf("%w: syntax error", xmldb.ErrSubmission)

		if got := xmldb.Execute[Book](ctx, store, "for $item in", novels); got != nil {
			t.Fatalf("got %v; want no records", got)
		}
		if !strings.Contains(logs.String(), "executing query") {
			t.Fatalf("failure not logged:\n%s", logs.String())
		}
	})
}

func TestExecuteNotSerializable(t *testing.T) {
	ctx, logs := newLogContext(t)
	store := newStore(novels, `<drafts><draft><title>x</title></draft></drafts>`)

	if got := xmldb.Execute[Draft](ctx, store, "for $item in collection('/db/bookshop/novels') return $item", novels); got != nil {
		t.Fatalf("got %v; want no records", got)
	}
	if store.calls != 0 {
		t.Fatalf("store was called %d times; want 0", store.calls)
	}
	if !strings.Contains(logs.String(), "not serializable") {
		t.Fatalf("failure not logged:\n%s", logs.String())
	}
}

func TestTryExecute(t *testing.T) {
	const query = "for $item in collection('/db/bookshop/novels') return $item"

	t.Run("type errors", func(t *testing.T) {
		tests := []struct {
			name    string
			execute func(context.Context, xmldb.Store) error
			wantErr error
		}{
			{
				name: "not serializable",
				execute: func(ctx context.Context, store xmldb.Store) error {
					_, err := xmldb.TryExecute[Draft](ctx, store, query, novels)
					return err
				},
				wantErr: xmlmodel.ErrNotSerializable,
			},
			{
				name: "unsupported field type",
				execute: func(ctx context.Context, store xmldb.Store) error {
					_, err := xmldb.TryExecute[Shelf](ctx, store, query, novels)
					return err
				},
				wantErr: xmlmodel.ErrUnsupportedFieldType,
			},
			{
				name: "unsupported field type on query",
				execute: func(ctx context.Context, store xmldb.Store) error {
					_, err := xmldb.TryExecuteQuery[Shelf](ctx, store, xquery.For[Shelf](novels))
					return err
				},
				wantErr: xmlmodel.ErrUnsupportedFieldType,
			},
		}

		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				ctx, _ := newLogContext(t)
				store := newStore(novels, `<shelf><name>x</name></shelf>`)

				if err := test.execute(ctx, store); !errors.Is(err, test.wantErr) {
					t.Fatalf("got %v; want %v", err, test.wantErr)
				}
				if store.calls != 0 {
					t.Fatalf("store was called %d times; want 0", store.calls)
				}
			})
		}
	})

	t.Run("store failures are not errors", func(t *testing.T) {
		ctx, logs := newLogContext(t)
		store := &fakeStore{err: errors.New("connection refused")}

		got, err := xmldb.TryExecute[Book](ctx, store, query, novels)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Fatalf("got %v; want no records", got)
		}
		if !strings.Contains(logs.String(), "resolving collection") {
			t.Fatalf("failure not logged:\n%s", logs.String())
		}
	})

	t.Run("records", func(t *testing.T) {
		ctx, _ := newLogContext(t)
		store := newStore(novels,
			`<book><title>1984</title><author>Orwell</author><year>1949</year></book>`,
			`<book><year>not a year</year></book>`,
		)

		got, err := xmldb.TryExecuteQuery[Book](ctx, store, xquery.For[Book](novels))
		if err != nil {
			t.Fatal(err)
		}
		want := []Book{{Title: "1984", Author: "Orwell", Year: 1949}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestExecuteQuery(t *testing.T) {
	ctx, _ := newLogContext(t)
	store := newStore(novels, `<book><title>Animal Farm</title><author>Orwell</author><year>1945</year></book>`)

	q := xquery.For[Book](novels, xquery.Equals("author", "Orwell"))
	got := xmldb.ExecuteQuery[*Book](ctx, store, q)

	if len(got) != 1 || *got[0] != (Book{Title: "Animal Farm", Author: "Orwell", Year: 1945}) {
		t.Fatalf("unexpected records: %v", got)
	}
	queries := store.collections[novels].queries
	if diff := cmp.Diff([]string{q.String()}, queries); diff != "" {
		t.Fatalf("submitted queries mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteQueryProjection(t *testing.T) {
	ctx, _ := newLogContext(t)
	store := newStore(novels,
		`<result><title><title>1984</title></title><year><year>1949</year></year></result>`,
		`<result><title><title>Animal Farm</title></title><year><year>1945</year></year></result>`,
	)

	q := xquery.For[Book](novels, xquery.Where("year", xquery.Lt, "1950"))
	q.Fields = []string{"title", "year"}
	got := xmldb.ExecuteQuery[Book](ctx, store, q)

	want := []Book{{Title: "1984", Year: 1949}, {Title: "Animal Farm", Year: 1945}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	xmldb.MustRegisterMetrics(registry)

	ctx, _ := newLogContext(t)
	store := newStore("/db/poems",
		`<poems><poem><title>Ozymandias</title><lines>14</lines></poem><poem><title>If</title><lines>32</lines></poem></poems>`,
		`<poems><poem><lines>many</lines></poem></poems>`,
		`<poems><poem><title>broken</title`,
	)

	got := xmldb.Execute[Poem](ctx, store, "for $item in collection('/db/poems')//poem return $item", "/db/poems")
	if len(got) != 2 {
		t.Fatalf("got %d poems; want 2", len(got))
	}
	xmldb.Execute[Poem](ctx, store, "query", "/db/missing")

	assertCounter(t, registry, "xmldb_fragments_total", map[string]string{"status": "ok", "entity": "poem"}, 1)
	assertCounter(t, registry, "xmldb_fragments_total", map[string]string{"status": "error", "entity": "poem"}, 2)
	assertCounter(t, registry, "xmldb_query_total", map[string]string{"status": "ok", "entity": "poem"}, 1)
	assertCounter(t, registry, "xmldb_query_total", map[string]string{"status": "collection_not_found", "entity": "poem"}, 1)
	assertCounter(t, registry, "xmldb_records_total", map[string]string{"entity": "poem"}, 2)
}

func newStore(path string, fragments ...string) *fakeStore {
	return &fakeStore{
		collections: map[string]*fakeCollection{
			path: {fragments: fragments},
		},
	}
}

func newLogContext(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	h, err := slog.NewHandler(&buf, slog.Config{Level: slog.LevelDebug, Format: slog.FormatText})
	if err != nil {
		t.Fatal(err)
	}
	return slog.NewContext(context.Background(), slog.New(h)), &buf
}

func assertCounter(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string, want float64) {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			got := map[string]string{}
			for _, label := range metric.GetLabel() {
				got[label.GetName()] = label.GetValue()
			}
			if !cmp.Equal(labels, got) {
				continue
			}
			if v := metric.GetCounter().GetValue(); v != want {
				t.Fatalf("%s%v: got %v; want %v", name, labels, v, want)
			}
			return
		}
	}
	t.Fatalf("%s%v: metric not found", name, labels)
}
