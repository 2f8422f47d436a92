package existdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/xhttp"
	"github.com/birdie-ai/xmlstore/xmldb"
)

type collection struct {
	client *Client
	path   string
}

const (
	rootCollection = "/db"
	existNamespace = "http://exist.sourceforge.net/NS/exist"
)

// Collection resolves the collection at the given path, like "/db/bookshop".
// It returns an error matching [xmldb.ErrCollectionNotFound] if the collection doesn't exist.
func (c *Client) Collection(ctx context.Context, path string) (xmldb.Collection, error) {
	coll, err := c.collection(ctx, path)
	if err != nil {
		return nil, err
	}
	return coll, nil
}

// CreateCollection creates the collection at the given path, including missing parents.
// Creating a collection that already exists does nothing.
func (c *Client) CreateCollection(ctx context.Context, p string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	log := slog.FromCtx(ctx).With("collection", p)

	_, err = c.collection(ctx, p)
	if err == nil {
		log.Debug("collection already exists")
		return nil
	}
	if !errors.Is(err, xmldb.ErrCollectionNotFound) || p == rootCollection {
		return err
	}

	parentPath, name := path.Split(p)
	parentPath = strings.TrimSuffix(parentPath, "/")
	if err := c.CreateCollection(ctx, parentPath); err != nil {
		return err
	}
	parent := &collection{client: c, path: parentPath}
	query := fmt.Sprintf("xmldb:create-collection(%s, %s)", quote(parentPath), quote(name))
	if _, err := parent.Query(ctx, query); err != nil {
		return fmt.Errorf("creating collection %s: %w", p, err)
	}

	log.Info("collection created")
	return nil
}

// Query submits the query text to eXist-db with this collection as context and returns each
// item of the result as a fragment. Results are requested in pages of the configured max results
// until all hits reported by eXist-db are read. Failures match [xmldb.ErrSubmission].
func (c *collection) Query(ctx context.Context, query string) ([]xmldb.Fragment, error) {
	log := slog.FromCtx(ctx).With("collection", c.path)

	var fragments []xmldb.Fragment
	for start := 1; ; {
		page, err := c.queryPage(ctx, query, start)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", xmldb.ErrSubmission, err)
		}
		fragments = append(fragments, page.fragments...)
		if page.hits <= len(fragments) {
			break
		}
		if len(page.fragments) == 0 {
			log.Warn("query result truncated", "hits", page.hits, "fragments", len(fragments))
			break
		}
		start += len(page.fragments)
	}

	log.Debug("query submitted", "fragments", len(fragments))
	return fragments, nil
}

type resultPage struct {
	fragments []xmldb.Fragment
	// hits is the total number of items matched by the query.
	hits int
}

func (c *collection) queryPage(ctx context.Context, query string, start int) (resultPage, error) {
	body, err := queryRequest(query, start, c.client.maxResults)
	if err != nil {
		return resultPage{}, err
	}
	res, err := c.client.send(ctx, http.MethodPost, c.path, strings.NewReader(body))
	if err != nil {
		return resultPage{}, err
	}
	if res.StatusCode != http.StatusOK {
		return resultPage{}, xhttp.NewStatusError(res)
	}
	return splitResult(res.Data)
}

func (c *Client) collection(ctx context.Context, p string) (*collection, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	res, err := c.send(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", p, err)
	}
	switch res.StatusCode {
	case http.StatusOK:
		return &collection{client: c, path: p}, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", xmldb.ErrCollectionNotFound, p)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: reading collection %s", ErrUnauthorized, p)
	default:
		return nil, fmt.Errorf("reading collection %s: %w", p, xhttp.NewStatusError(res))
	}
}

// queryRequest creates the body of a REST query request, the query text goes on a CDATA section.
func queryRequest(query string, start, maxResults int) (string, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("query")
	root.CreateAttr("xmlns", existNamespace)
	root.CreateAttr("start", strconv.Itoa(start))
	root.CreateAttr("max", strconv.Itoa(maxResults))
	root.CreateAttr("wrap", "yes")
	root.CreateAttr("cache", "no")
	root.CreateElement("text").CreateCData(query)
	return doc.WriteToString()
}

// splitResult splits the <exist:result> wrapper in one fragment per child element.
// Without an exist:hits attribute the page is taken as the whole result.
func splitResult(data []byte) (resultPage, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return resultPage{}, fmt.Errorf("parsing query result: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "result" {
		return resultPage{}, fmt.Errorf("query result has no <exist:result> root: %s", data)
	}

	items := root.ChildElements()
	page := resultPage{fragments: make([]xmldb.Fragment, 0, len(items)), hits: len(items)}
	if v := root.SelectAttrValue("exist:hits", ""); v != "" {
		hits, err := strconv.Atoi(v)
		if err != nil || hits < 0 {
			return resultPage{}, fmt.Errorf("query result has invalid exist:hits %q", v)
		}
		page.hits = hits
	}
	for _, item := range items {
		fragment := etree.NewDocument()
		fragment.SetRoot(item.Copy())
		text, err := fragment.WriteToString()
		if err != nil {
			return resultPage{}, fmt.Errorf("writing query result item: %w", err)
		}
		page.fragments = append(page.fragments, xmldb.Text(text))
	}
	return page, nil
}

// cleanPath validates a collection path, it must be /db or a path under it.
func cleanPath(p string) (string, error) {
	cleaned := path.Clean(p)
	if cleaned != rootCollection && !strings.HasPrefix(cleaned, rootCollection+"/") {
		return "", fmt.Errorf("%w: %q is not under %s", ErrInvalidPath, p, rootCollection)
	}
	return cleaned, nil
}

// quote creates an XQuery string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
