package schema

import (
	"testing"

	bferrors "github.com/logflow/batchflow/pkg/errors"
)

func TestRole_String(t *testing.T) {
	tests := []struct {
		role     Role
		expected string
	}{
		{RoleCase, "case"},
		{RoleActivity, "activity"},
		{RoleEnabled, "enabled_time"},
		{RoleBatchType, "batch_type"},
		{Role(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.role.String(); got != tt.expected {
			t.Errorf("Role(%d).String() = %q, want %q", tt.role, got, tt.expected)
		}
	}
}

func TestBind_Default(t *testing.T) {
	header := []string{"\ufeffcase_id", "Activity", "enabled_time", "start_time", "end_time", "Resource", "cost"}

	b, err := Default().Bind(header)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	if b.Index(RoleCase) != 0 {
		t.Errorf("case index = %d, want 0 (BOM must be ignored)", b.Index(RoleCase))
	}
	if b.Index(RoleResource) != 5 {
		t.Errorf("resource index = %d, want 5", b.Index(RoleResource))
	}
	if b.Has(RoleBatchID) || b.Has(RoleBatchType) {
		t.Error("batch columns should be absent")
	}
	if names := b.ExtraNames(); len(names) != 1 || names[0] != "cost" {
		t.Errorf("ExtraNames = %v, want [cost]", names)
	}
}

func TestBind_MissingRequired(t *testing.T) {
	header := []string{"case_id", "Activity", "Resource", "start_time", "end_time"}

	_, err := Default().Bind(header)
	if err == nil {
		t.Fatal("expected error for missing enabled_time")
	}
	if !bferrors.IsCode(err, bferrors.CodeMissingColumn) {
		t.Errorf("expected E104, got %v", err)
	}
	if !bferrors.IsSchemaError(err) {
		t.Error("missing column must be a schema error")
	}
}

func TestBind_PrePopulatedBatchColumns(t *testing.T) {
	s := Default()
	header := s.Header(nil)

	b, err := s.Bind(header)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if !b.Has(RoleBatchID) || !b.Has(RoleBatchType) {
		t.Error("batch columns should be bound when present")
	}
	if len(b.Extra) != 0 {
		t.Errorf("expected no extra columns, got %v", b.Extra)
	}
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Resource = s.Case
	if err := s.Validate(); !bferrors.IsCode(err, bferrors.CodeInvalidSchema) {
		t.Errorf("duplicate binding: expected E106, got %v", err)
	}

	s = Default()
	s.End = "  "
	if err := s.Validate(); !bferrors.IsCode(err, bferrors.CodeInvalidSchema) {
		t.Errorf("empty binding: expected E106, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	merged := Default().Merge(Schema{Case: "case", TimestampFormat: "2006-01-02"})
	if merged.Case != "case" || merged.Activity != "Activity" || merged.TimestampFormat != "2006-01-02" {
		t.Errorf("unexpected merge result: %+v", merged)
	}
}
