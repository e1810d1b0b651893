package store

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// MaxOpAttempts bounds how many times an op that keeps failing on the
// server side is replayed before it is dropped.
const MaxOpAttempts = 5

const outboxKey = "outbox"

type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one queued local write. Body holds the full record as it should
// reach the remote, with the pending flag cleared.
type Op struct {
	ID        string          `json:"id"`
	Kind      OpKind          `json:"kind"`
	RecordID  string          `json:"recordId"`
	Body      json.RawMessage `json:"body,omitempty"`
	Attempts  int             `json:"attempts"`
	QueuedAt  time.Time       `json:"queuedAt"`
	LastError string          `json:"lastError,omitempty"`
}

func newOp(kind OpKind, recordID string, body json.RawMessage, now time.Time) Op {
	return Op{
		ID:       uuid.NewString(),
		Kind:     kind,
		RecordID: recordID,
		Body:     body,
		QueuedAt: now,
	}
}

// enqueue appends op to ops, folding it into what is already queued for
// the same record:
//
//   - an update of a record with a queued create or update replaces that
//     op's body;
//   - a delete of a record with a queued create removes every op for the
//     record, so the remote never hears of it;
//   - a delete otherwise replaces queued updates.
func enqueue(ops []Op, op Op) []Op {
	switch op.Kind {
	case OpUpdate:
		for i := range ops {
			if ops[i].RecordID == op.RecordID && ops[i].Kind != OpDelete {
				ops[i].Body = op.Body
				return ops
			}
		}
	case OpDelete:
		created := slices.ContainsFunc(ops, func(o Op) bool {
			return o.RecordID == op.RecordID && o.Kind == OpCreate
		})
		ops = dropRecord(ops, op.RecordID)
		if created {
			return ops
		}
	}
	return append(ops, op)
}

// dropRecord removes every op that targets id.
func dropRecord(ops []Op, id string) []Op {
	return slices.DeleteFunc(ops, func(o Op) bool { return o.RecordID == id })
}

func indexOp(ops []Op, id string) int {
	return slices.IndexFunc(ops, func(o Op) bool { return o.ID == id })
}

// renameRecord points every op for from at to, rewriting the id inside
// the queued bodies as well.
func renameRecord(ops []Op, from, to string) {
	for i := range ops {
		if ops[i].RecordID != from {
			continue
		}
		ops[i].RecordID = to
		ops[i].Body = withID(ops[i].Body, to)
	}
}

// withID returns body with its "id" member replaced. Bodies that are not
// JSON objects are returned unchanged.
func withID(body json.RawMessage, id string) json.RawMessage {
	if len(body) == 0 {
		return body
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	raw, _ := json.Marshal(id)
	m["id"] = raw
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}
