// Package schema binds the roles of an activity-instance log to column names.
//
// Every reader and writer receives a Schema explicitly; column identity is
// never looked up from package state.
package schema

import (
	"fmt"
	"strings"

	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// Role is a named column role of the event log.
type Role uint8

const (
	RoleCase Role = iota
	RoleActivity
	RoleResource
	RoleEnabled
	RoleStart
	RoleEnd
	RoleBatchID
	RoleBatchType
)

const numRoles = 8

// Roles lists all roles in canonical output order.
var Roles = []Role{RoleCase, RoleActivity, RoleResource, RoleEnabled, RoleStart, RoleEnd, RoleBatchID, RoleBatchType}

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleCase:
		return "case"
	case RoleActivity:
		return "activity"
	case RoleResource:
		return "resource"
	case RoleEnabled:
		return "enabled_time"
	case RoleStart:
		return "start_time"
	case RoleEnd:
		return "end_time"
	case RoleBatchID:
		return "batch_id"
	case RoleBatchType:
		return "batch_type"
	default:
		return "unknown"
	}
}

// Required reports whether the role must be present in an input log.
func (r Role) Required() bool {
	return r != RoleBatchID && r != RoleBatchType
}

// IsTime reports whether the role holds a timestamp.
func (r Role) IsTime() bool {
	return r == RoleEnabled || r == RoleStart || r == RoleEnd
}

// Schema maps each role to a column name.
type Schema struct {
	Case      string `yaml:"case" toml:"case"`
	Activity  string `yaml:"activity" toml:"activity"`
	Resource  string `yaml:"resource" toml:"resource"`
	Enabled   string `yaml:"enabled_time" toml:"enabled_time"`
	Start     string `yaml:"start_time" toml:"start_time"`
	End       string `yaml:"end_time" toml:"end_time"`
	BatchID   string `yaml:"batch_id" toml:"batch_id"`
	BatchType string `yaml:"batch_type" toml:"batch_type"`

	// TimestampFormat is an optional Go layout tried before the built-in ones.
	TimestampFormat string `yaml:"timestamp_format,omitempty" toml:"timestamp_format"`
}

// Default returns the column names used by the batch discovery tooling.
func Default() Schema {
	return Schema{
		Case:      "case_id",
		Activity:  "Activity",
		Resource:  "Resource",
		Enabled:   "enabled_time",
		Start:     "start_time",
		End:       "end_time",
		BatchID:   "batch_instance_id",
		BatchType: "batch_instance_type",
	}
}

// Column returns the column name bound to role.
func (s Schema) Column(r Role) string {
	switch r {
	case RoleCase:
		return s.Case
	case RoleActivity:
		return s.Activity
	case RoleResource:
		return s.Resource
	case RoleEnabled:
		return s.Enabled
	case RoleStart:
		return s.Start
	case RoleEnd:
		return s.End
	case RoleBatchID:
		return s.BatchID
	case RoleBatchType:
		return s.BatchType
	default:
		return ""
	}
}

// Merge returns s with every non-empty field of o applied on top.
func (s Schema) Merge(o Schema) Schema {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return Schema{
		Case:            pick(s.Case, o.Case),
		Activity:        pick(s.Activity, o.Activity),
		Resource:        pick(s.Resource, o.Resource),
		Enabled:         pick(s.Enabled, o.Enabled),
		Start:           pick(s.Start, o.Start),
		End:             pick(s.End, o.End),
		BatchID:         pick(s.BatchID, o.BatchID),
		BatchType:       pick(s.BatchType, o.BatchType),
		TimestampFormat: pick(s.TimestampFormat, o.TimestampFormat),
	}
}

// Validate rejects empty and duplicated column bindings.
func (s Schema) Validate() error {
	seen := make(map[string]Role, len(Roles))
	for _, r := range Roles {
		col := s.Column(r)
		if strings.TrimSpace(col) == "" {
			return bferrors.New(bferrors.CodeInvalidSchema, "empty column binding").
				WithContext("role", r.String())
		}
		if prev, ok := seen[col]; ok {
			return bferrors.New(bferrors.CodeInvalidSchema, "column bound to two roles").
				WithContext("column", col).
				WithContext("roles", fmt.Sprintf("%s,%s", prev, r))
		}
		seen[col] = r
	}
	return nil
}

// Binding holds the resolved column index of every role in one input header.
type Binding struct {
	index [numRoles]int
	// Extra holds the indices of columns not bound to any role.
	Extra []int
	// Header is the input header the binding was resolved against.
	Header []string
}

// Index returns the column index of role, or -1 when absent.
func (b *Binding) Index(r Role) int {
	return b.index[r]
}

// Has reports whether role is present in the header.
func (b *Binding) Has(r Role) bool {
	return b.index[r] >= 0
}

// ExtraNames returns the names of the pass-through columns.
func (b *Binding) ExtraNames() []string {
	names := make([]string, len(b.Extra))
	for i, idx := range b.Extra {
		names[i] = b.Header[idx]
	}
	return names
}

// Bind resolves the schema against a header row.
// A missing required role fails fast with a SchemaError (E104).
func (s Schema) Bind(header []string) (*Binding, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	b := &Binding{Header: header}
	bound := make(map[int]bool, len(Roles))
	for _, r := range Roles {
		col := s.Column(r)
		idx, ok := pos[col]
		if !ok {
			if r.Required() {
				return nil, bferrors.MissingColumn(r.String(), col, header)
			}
			b.index[r] = -1
			continue
		}
		b.index[r] = idx
		bound[idx] = true
	}

	for i := range header {
		if !bound[i] {
			b.Extra = append(b.Extra, i)
		}
	}
	return b, nil
}

// Header returns the output header: role columns followed by extra columns.
func (s Schema) Header(extra []string) []string {
	out := make([]string, 0, len(Roles)+len(extra))
	for _, r := range Roles {
		out = append(out, s.Column(r))
	}
	return append(out, extra...)
}
