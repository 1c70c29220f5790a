package mongotools

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nikmy/graphtx/pkg/errors"
)

// ParamPrefix marks a string value in a command template as a parameter
// reference: "@name" is replaced by params["name"].
const ParamPrefix = "@"

// Command parses an extended JSON command template and binds params into it.
func Command(template string, params map[string]any) (bson.D, error) {
	var cmd bson.D
	err := bson.UnmarshalExtJSON([]byte(template), false, &cmd)
	if err != nil {
		return nil, errors.WrapFail(err, "parse command template")
	}

	bound, err := bind(cmd, params)
	if err != nil {
		return nil, err
	}
	return bound.(bson.D), nil
}

func bind(v any, params map[string]any) (any, error) {
	switch val := v.(type) {
	case bson.D:
		out := make(bson.D, 0, len(val))
		for _, e := range val {
			b, err := bind(e.Value, params)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q", e.Key)
			}
			out = append(out, bson.E{Key: e.Key, Value: b})
		}
		return out, nil
	case bson.A:
		out := make(bson.A, 0, len(val))
		for i, item := range val {
			b, err := bind(item, params)
			if err != nil {
				return nil, errors.Wrapf(err, "item %d", i)
			}
			out = append(out, b)
		}
		return out, nil
	case string:
		name, isParam := strings.CutPrefix(val, ParamPrefix)
		if !isParam {
			return val, nil
		}
		p, ok := params[name]
		if !ok {
			return nil, errors.Errorf("missing parameter %q", name)
		}
		return p, nil
	default:
		return v, nil
	}
}

// Batch returns the documents of a cursor reply, or the reply itself for
// commands that do not open a cursor.
func Batch(reply bson.M) []bson.M {
	cur, ok := document(reply["cursor"])
	if !ok {
		return []bson.M{reply}
	}

	batch, _ := cur["firstBatch"].(bson.A)
	docs := make([]bson.M, 0, len(batch))
	for _, item := range batch {
		if doc, ok := document(item); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

func document(v any) (bson.M, bool) {
	switch doc := v.(type) {
	case bson.M:
		return doc, true
	case bson.D:
		m := make(bson.M, len(doc))
		for _, e := range doc {
			m[e.Key] = e.Value
		}
		return m, true
	default:
		return nil, false
	}
}

// CommandName is the first key of cmd, which names the command.
func CommandName(cmd bson.D) string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0].Key
}
