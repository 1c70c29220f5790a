package users

import (
	"context"

	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/txn"
)

// Dialect holds the statements a backend understands. Statements take the
// parameters "props" (Create) and "name" (ByName) and return rows with the
// columns id, name and email.
type Dialect struct {
	Create string
	All    string
	ByName string
}

// Cypher serves neo4j and the in-memory backend.
var Cypher = Dialect{
	Create: "CREATE (n:User) SET n = $props",
	All:    "MATCH (n:User) RETURN n.id AS id, n.name AS name, n.email AS email",
	ByName: "MATCH (n:User) WHERE n.name = $name RETURN n.id AS id, n.name AS name, n.email AS email",
}

// MongoCommands serves mongo as extended JSON command templates.
var MongoCommands = Dialect{
	Create: `{"insert": "users", "documents": ["@props"]}`,
	All:    `{"find": "users", "filter": {}, "projection": {"_id": 0}, "singleBatch": true, "limit": 1000}`,
	ByName: `{"find": "users", "filter": {"name": "@name"}, "projection": {"_id": 0}, "singleBatch": true, "limit": 1000}`,
}

func NewRepo(d Dialect) *Repo {
	return &Repo{dialect: d}
}

type Repo struct {
	dialect Dialect
}

func (r *Repo) Create(ctx context.Context, tx *txn.Context, u User) error {
	cur, err := tx.Run(ctx, r.dialect.Create, map[string]any{"props": u.props()})
	if err != nil {
		return errors.WrapFail(err, "create user")
	}
	_, err = txn.Collect(ctx, cur)
	return errors.WrapFail(err, "consume create result")
}

func (r *Repo) All(ctx context.Context, tx *txn.Context) ([]User, error) {
	return r.query(ctx, tx, r.dialect.All, nil)
}

func (r *Repo) ByName(ctx context.Context, tx *txn.Context, name string) ([]User, error) {
	return r.query(ctx, tx, r.dialect.ByName, map[string]any{"name": name})
}

func (r *Repo) query(ctx context.Context, tx *txn.Context, statement string, params map[string]any) ([]User, error) {
	cur, err := tx.Run(ctx, statement, params)
	if err != nil {
		return nil, errors.WrapFail(err, "select users")
	}

	records, err := txn.Collect(ctx, cur)
	if err != nil {
		return nil, errors.WrapFail(err, "read users")
	}

	found := make([]User, 0, len(records))
	for _, rec := range records {
		u, err := fromRecord(rec)
		if err != nil {
			return nil, errors.WrapFail(err, "decode user")
		}
		found = append(found, u)
	}
	return found, nil
}
