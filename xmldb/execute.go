package xmldb

import (
	"context"
	"errors"
	"time"

	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/xmlmodel"
	"github.com/birdie-ai/xmlstore/xquery"
)

// Execute submits the query text to the collection at path and maps every result fragment
// to records of type T with [xmlmodel.Unmarshal]. Records are returned in fragment order and
// then in document order inside each fragment.
//
// Execute never fails: if T is not serializable, the collection can't be resolved or the query
// can't be submitted the failure is logged and no records are returned. A fragment that can't be
// mapped is logged and skipped, the remaining fragments are still mapped.
// Use [TryExecute] to get the errors of T itself, like [xmlmodel.ErrUnsupportedFieldType].
// The logger is obtained from ctx with [slog.FromCtx].
func Execute[T any](ctx context.Context, store Store, query, path string) []T {
	records, _ := TryExecute[T](ctx, store, query, path)
	return records
}

// ExecuteQuery builds the query text with [xquery.Query.String] and calls [Execute].
// Projected queries (see [xquery.Query.Fields]) are mapped from their <result> elements
// instead of the entity elements of T, so the projected fields must have the tags of fields of T.
func ExecuteQuery[T any](ctx context.Context, store Store, q xquery.Query) []T {
	records, _ := TryExecuteQuery[T](ctx, store, q)
	return records
}

// TryExecute is like [Execute] but returns an error when the records can't be mapped to T at all:
// T is not serializable ([xmlmodel.ErrNotSerializable]) or has a field without XML conversion
// ([xmlmodel.ErrUnsupportedFieldType]). These are checked before the store is used.
// Store and per-fragment failures are still logged and degrade to fewer records, without error.
func TryExecute[T any](ctx context.Context, store Store, query, path string) ([]T, error) {
	return execute[T](ctx, store, query, path)
}

// TryExecuteQuery is like [ExecuteQuery] with the errors of [TryExecute].
func TryExecuteQuery[T any](ctx context.Context, store Store, q xquery.Query) ([]T, error) {
	if q.Projected() {
		return execute[T](ctx, store, q.String(), q.Collection, xmlmodel.WithEntityTag(xquery.ResultTag))
	}
	return execute[T](ctx, store, q.String(), q.Collection)
}

func execute[T any](ctx context.Context, store Store, query, path string, opts ...xmlmodel.Option) ([]T, error) {
	start := time.Now()
	entity := xmlmodel.EntityTagOf[T]()
	log := slog.FromCtx(ctx).With("collection", path, "entity", entity)

	if _, err := xmlmodel.DescriptorOf[T](); err != nil {
		log.Error("query results can't be mapped", "error", err)
		sampleQuery(entity, statusError, time.Since(start), 0)
		return nil, err
	}

	coll, err := store.Collection(ctx, path)
	if err != nil {
		log.Error("resolving collection", "error", err)
		status := statusError
		if errors.Is(err, ErrCollectionNotFound) {
			status = statusNotFound
		}
		sampleQuery(entity, status, time.Since(start), 0)
		return nil, nil
	}

	fragments, err := coll.Query(ctx, query)
	if err != nil {
		log.Error("executing query", "query", query, "error", err)
		sampleQuery(entity, statusError, time.Since(start), 0)
		return nil, nil
	}

	var records []T
	for i, fragment := range fragments {
		mapped, err := xmlmodel.UnmarshalString[T](fragment.Content(), opts...)
		sampleFragment(entity, err)
		if err != nil {
			log.Error("mapping query result", "fragment", i, "error", err)
			continue
		}
		records = append(records, mapped...)
	}

	log.Debug("query executed", "fragments", len(fragments), "records", len(records))
	sampleQuery(entity, statusOK, time.Since(start), len(records))
	return records, nil
}
