package memory

import (
	"context"
	"maps"
	"reflect"
	"regexp"
	"strings"

	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/txn"
)

var (
	createStatement = regexp.MustCompile(`^CREATE \(n:(\w+)\) SET n = \$(\w+)$`)
	matchStatement  = regexp.MustCompile(`^MATCH \(n:(\w+)\)(?: WHERE n\.(\w+) = \$(\w+))? RETURN (.+)$`)
	projectionItem  = regexp.MustCompile(`^n\.(\w+) AS (\w+)$`)
)

var errFinished = errors.Error("transaction already finished")

type node struct {
	label string
	props map[string]any
}

type session struct {
	driver   *Driver
	database string
	mode     txn.AccessMode
}

func (s *session) BeginTransaction(context.Context) (txn.Tx, error) {
	return &transaction{session: s}, nil
}

func (s *session) Close(context.Context) error {
	return nil
}

type transaction struct {
	session  *session
	pending  []node
	finished bool
}

func (t *transaction) Run(_ context.Context, statement string, params map[string]any) (txn.Cursor, error) {
	if t.finished {
		return nil, errFinished
	}

	statement = strings.Join(strings.Fields(statement), " ")
	if m := createStatement.FindStringSubmatch(statement); m != nil {
		return t.create(m[1], params[m[2]])
	}
	if m := matchStatement.FindStringSubmatch(statement); m != nil {
		return t.match(m[1], m[2], params[m[3]], m[4])
	}
	return nil, errors.Errorf("unsupported statement %q", statement)
}

func (t *transaction) create(label string, rawProps any) (txn.Cursor, error) {
	if t.session.mode == txn.AccessModeRead {
		return nil, errors.Error("writing in read access mode not allowed")
	}

	props, ok := rawProps.(map[string]any)
	if !ok {
		return nil, errors.Errorf("node properties must be a map, got %T", rawProps)
	}

	t.pending = append(t.pending, node{label: label, props: maps.Clone(props)})
	return &cursor{pos: -1}, nil
}

func (t *transaction) match(label, key string, value any, projection string) (txn.Cursor, error) {
	columns, err := parseProjection(projection)
	if err != nil {
		return nil, err
	}

	filter := func(props map[string]any) bool {
		return key == "" || reflect.DeepEqual(props[key], value)
	}

	nodes := t.session.driver.match(t.session.database, label, filter)
	for _, n := range t.pending {
		if n.label == label && filter(n.props) {
			nodes = append(nodes, n.props)
		}
	}

	records := make([]map[string]any, 0, len(nodes))
	for _, props := range nodes {
		rec := make(map[string]any, len(columns))
		for _, c := range columns {
			rec[c.alias] = props[c.key]
		}
		records = append(records, rec)
	}
	return &cursor{records: records, pos: -1}, nil
}

func (t *transaction) Commit(context.Context) (bookmark.Set, error) {
	if t.finished {
		return bookmark.Set{}, errFinished
	}
	t.finished = true
	return t.session.driver.commit(t.session.database, t.pending)
}

func (t *transaction) Rollback(context.Context) error {
	if t.finished {
		return errFinished
	}
	t.finished = true
	t.pending = nil
	return nil
}

type column struct {
	key   string
	alias string
}

func parseProjection(projection string) ([]column, error) {
	items := strings.Split(projection, ",")
	columns := make([]column, 0, len(items))
	for _, item := range items {
		m := projectionItem.FindStringSubmatch(strings.TrimSpace(item))
		if m == nil {
			return nil, errors.Errorf("unsupported projection %q", item)
		}
		columns = append(columns, column{key: m[1], alias: m[2]})
	}
	return columns, nil
}

type cursor struct {
	records []map[string]any
	pos     int
}

func (c *cursor) Next(context.Context) bool {
	if c.pos+1 >= len(c.records) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Record() map[string]any {
	if c.pos < 0 || c.pos >= len(c.records) {
		return nil
	}
	return c.records[c.pos]
}

func (c *cursor) Err() error {
	return nil
}
