package remote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Backend is a hierarchical record store partitioned into named zones.
// Implementations live in memstore, sqlstore and httpstore.
type Backend interface {
	// FetchZone returns ErrNamespaceMissing when the zone does not exist
	FetchZone(ctx context.Context, zone string) error
	// CreateZone is a no-op when the zone already exists
	CreateZone(ctx context.Context, zone string) error
	// DeleteZone removes the zone and every record in it
	DeleteZone(ctx context.Context, zone string) error
	// Lookup returns records in id order; a missing id is ErrRecordNotFound
	Lookup(ctx context.Context, zone string, ids []string) ([]Record, error)
	Modify(ctx context.Context, zone string, req ModifyRequest) (ModifyResult, error)
	Query(ctx context.Context, zone string, q Query) ([]Record, error)
}

// SavePolicy controls how a save treats an existing record
type SavePolicy string

const (
	// SaveIfUnchanged rejects the save with ErrConflict when the stored
	// change tag differs from the one on the submitted record
	SaveIfUnchanged SavePolicy = "ifUnchanged"
	// SaveOverwrite replaces whatever is stored
	SaveOverwrite SavePolicy = "overwrite"
)

// HealthChecker is implemented by backends that expose a liveness check
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ModifyRequest saves and deletes records in one round trip. With Atomic
// set either every change is applied or none is.
type ModifyRequest struct {
	Save   []Record   `json:"save,omitempty"`
	Delete []string   `json:"delete,omitempty"`
	Policy SavePolicy `json:"policy"`
	Atomic bool       `json:"atomic"`
}

// ModifyResult carries the stored versions of saved records
type ModifyResult struct {
	Saved   []Record `json:"saved"`
	Deleted []string `json:"deleted"`
}

// FilterOp is a query comparison
type FilterOp string

const (
	OpEqual          FilterOp = "eq"
	OpIn             FilterOp = "in"
	OpGreaterOrEqual FilterOp = "gte"
)

// Filter restricts a query to records whose field matches
type Filter struct {
	Field  string   `json:"field"`
	Op     FilterOp `json:"op"`
	Value  Value    `json:"value,omitzero"`
	Values []Value  `json:"values,omitempty"`
}

func Equal(field string, v Value) Filter {
	return Filter{Field: field, Op: OpEqual, Value: v}
}

func In(field string, vs []Value) Filter {
	return Filter{Field: field, Op: OpIn, Values: vs}
}

func GreaterOrEqual(field string, v Value) Filter {
	return Filter{Field: field, Op: OpGreaterOrEqual, Value: v}
}

// Sort orders query results by one field
type Sort struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// Query selects records of one type
type Query struct {
	Type    string   `json:"type"`
	Filters []Filter `json:"filters,omitempty"`
	Sorts   []Sort   `json:"sorts,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Matches reports whether rec satisfies every filter of q
func (q Query) Matches(rec Record) bool {
	if rec.Type != q.Type {
		return false
	}
	for _, f := range q.Filters {
		v, ok := rec.Fields[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if Compare(v, f.Value) != 0 {
				return false
			}
		case OpIn:
			found := false
			for _, want := range f.Values {
				if Compare(v, want) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpGreaterOrEqual:
			if v.Kind != f.Value.Kind || Compare(v, f.Value) < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Validate rejects queries a backend cannot run
func (q Query) Validate() error {
	if q.Type == "" {
		return fmt.Errorf("query without record type: %w", ErrEncoding)
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpIn, OpGreaterOrEqual:
		default:
			return fmt.Errorf("unknown filter op %q: %w", f.Op, ErrEncoding)
		}
	}
	return nil
}

// Apply filters, sorts and limits candidate records. Backends that cannot
// push a query down load candidates by type and call this.
func (q Query) Apply(candidates []Record) []Record {
	out := make([]Record, 0, len(candidates))
	for _, rec := range candidates {
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, s := range q.Sorts {
			a, aok := out[i].Fields[s.Field]
			b, bok := out[j].Fields[s.Field]
			switch {
			case !aok && !bok:
				continue
			case !aok:
				return false
			case !bok:
				return true
			}
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if s.Descending {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Table is the per-zone storage a backend exposes to ApplyModify
type Table interface {
	Get(id string) (Record, bool, error)
	Put(rec Record) error
	Remove(id string) error
	// Children returns ids of records holding a cascading reference to id
	Children(id string) ([]string, error)
}

// ApplyModify runs a modify request against a table. The caller supplies
// transaction boundaries: on an atomic failure nothing has been written.
func ApplyModify(t Table, req ModifyRequest, now time.Time) (ModifyResult, error) {
	policy := req.Policy
	if policy == "" {
		policy = SaveIfUnchanged
	}
	var failed []RecordError
	ok := make([]Record, 0, len(req.Save))
	for _, rec := range req.Save {
		if err := checkSave(t, rec, policy); err != nil {
			if req.Atomic {
				return ModifyResult{}, fmt.Errorf("atomic batch rejected: %w", &RecordError{ID: rec.ID, Err: err})
			}
			failed = append(failed, RecordError{ID: rec.ID, Err: err})
			continue
		}
		ok = append(ok, rec)
	}

	var res ModifyResult
	for _, rec := range ok {
		stored := rec.Clone()
		existing, found, err := t.Get(rec.ID)
		if err != nil {
			return ModifyResult{}, err
		}
		if found {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}
		stored.ModifiedAt = now
		stored.ChangeTag = uuid.NewString()[:8]
		if err := t.Put(stored); err != nil {
			return ModifyResult{}, err
		}
		res.Saved = append(res.Saved, stored.Clone())
	}
	for _, id := range req.Delete {
		if err := CascadeDelete(t, id); err != nil {
			return ModifyResult{}, err
		}
		res.Deleted = append(res.Deleted, id)
	}

	if len(failed) > 0 {
		pe := &PartialBatchError{Failed: failed, Deleted: res.Deleted}
		for _, rec := range res.Saved {
			pe.Saved = append(pe.Saved, rec.ID)
		}
		return res, pe
	}
	return res, nil
}

func checkSave(t Table, rec Record, policy SavePolicy) error {
	if rec.ID == "" || rec.Type == "" {
		return fmt.Errorf("record without id or type: %w", ErrEncoding)
	}
	existing, found, err := t.Get(rec.ID)
	if err != nil {
		return err
	}
	if found && existing.Type != rec.Type {
		return fmt.Errorf("id already used by a %s: %w", existing.Type, ErrConflict)
	}
	if policy == SaveOverwrite {
		return nil
	}
	switch {
	case found && existing.ChangeTag != rec.ChangeTag:
		return ErrConflict
	case !found && rec.ChangeTag != "":
		return ErrRecordNotFound
	}
	return nil
}

// CascadeDelete removes id and, depth first, every record that references
// it with ActionDeleteSelf. Deleting a missing id is not an error.
func CascadeDelete(t Table, id string) error {
	return cascade(t, id, make(map[string]bool))
}

func cascade(t Table, id string, seen map[string]bool) error {
	if seen[id] {
		return nil
	}
	seen[id] = true
	children, err := t.Children(id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := cascade(t, child, seen); err != nil {
			return err
		}
	}
	return t.Remove(id)
}
