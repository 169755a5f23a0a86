// Package record defines the opaque Record type that flows through the
// engine, replicator, and mutator: a map carrying at least a server
// identifier (id or _id), a client-minted uuid, and an updatedAt
// timestamp, with arbitrary domain fields carried through untouched.
package record

import "time"

// Record is an opaque domain object. Callers are free to stuff any JSON-ish
// value into it; the replication core only ever looks at a handful of
// well-known keys via the accessors below.
type Record map[string]any

// ID returns the server identifier, preferring "id" over "_id", and
// whether one was present.
func (r Record) ID() (any, bool) {
	if v, ok := r["id"]; ok && v != nil {
		return v, true
	}
	if v, ok := r["_id"]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// SetID sets the "id" field.
func (r Record) SetID(id any) {
	r["id"] = id
}

// UUID returns the client-minted uuid, if present.
func (r Record) UUID() (string, bool) {
	v, ok := r["uuid"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetUUID sets the uuid field.
func (r Record) SetUUID(uuid string) {
	r["uuid"] = uuid
}

// UpdatedAt returns the updatedAt timestamp, if present and parseable.
// Accepts either a time.Time (set in-process) or an RFC3339 string
// (typically decoded from remote JSON).
func (r Record) UpdatedAt() (time.Time, bool) {
	v, ok := r["updatedAt"]
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// SetUpdatedAt stamps the updatedAt field.
func (r Record) SetUpdatedAt(t time.Time) {
	r["updatedAt"] = t
}

// Clone returns a shallow copy of the record. Used before mutation so the
// caller's original map is never mutated in place by the engine.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Get returns an arbitrary field's value.
func (r Record) Get(field string) (any, bool) {
	v, ok := r[field]
	return v, ok
}
