package parser

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/schema"
)

const sampleCSV = `case_id,Activity,Resource,enabled_time,start_time,end_time,cost
1,A,Jonathan,2021-01-01T09:00:00+00:00,2021-01-01T09:30:00+00:00,2021-01-01T10:00:00+00:00,12
2,A,Jonathan,2021-01-01T08:30:00+00:00,2021-01-01T09:00:00+00:00,2021-01-01T09:20:00+00:00,"1,5"
3,"B ""urgent""",Joseph,2021-01-01 09:00:00,2021-01-01 09:00:00,2021-01-01 11:00:00,
`

func readCSV(t *testing.T, data string, cfg Config) (*model.Log, error) {
	t.Helper()
	p, err := NewParser(FormatCSV, cfg)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	return ReadLog(context.Background(), p, strings.NewReader(data))
}

func TestCSVParser_ReadLog(t *testing.T) {
	log, err := readCSV(t, sampleCSV, DefaultConfig())
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if log.Len() != 3 {
		t.Fatalf("expected 3 instances, got %d", log.Len())
	}

	// Sorted by start: case 2 (09:00), case 3 (09:00, later row), case 1.
	wantCases := []string{"2", "3", "1"}
	for i, want := range wantCases {
		if got := log.Instances[i].Case; got != want {
			t.Errorf("row %d case = %q, want %q", i, got, want)
		}
	}

	first := log.Instances[0]
	if !first.Start.Equal(time.Date(2021, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", first.Start)
	}
	if first.BatchID != model.NoBatch || first.BatchType != "" {
		t.Errorf("expected no batch annotation, got %v/%q", first.BatchID, first.BatchType)
	}
	if len(log.Extra) != 1 || log.Extra[0] != "cost" {
		t.Fatalf("Extra = %v, want [cost]", log.Extra)
	}
	if v := first.Attrs[0].Value; v != "1,5" {
		t.Errorf("quoted extra value = %q, want %q", v, "1,5")
	}
	if got := log.Instances[1].Activity; got != `B "urgent"` {
		t.Errorf("escaped activity = %q", got)
	}
}

func TestCSVParser_PrePopulatedBatches(t *testing.T) {
	data := `case_id,Activity,Resource,enabled_time,start_time,end_time,batch_instance_id,batch_instance_type
1,A,R,2021-01-01T09:00:00Z,2021-01-01T09:00:00Z,2021-01-01T10:00:00Z,0,Parallel
2,A,R,2021-01-01T09:00:00Z,2021-01-01T09:00:00Z,2021-01-01T10:00:00Z,0.0,parallel
3,A,R,2021-01-01T09:00:00Z,2021-01-01T11:00:00Z,2021-01-01T12:00:00Z,<NA>,
`
	log, err := readCSV(t, data, DefaultConfig())
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	want := []struct {
		id   model.BatchID
		kind model.BatchType
	}{
		{0, model.Parallel},
		{0, model.Parallel},
		{model.NoBatch, ""},
	}
	for i, w := range want {
		in := log.Instances[i]
		if in.BatchID != w.id || in.BatchType != w.kind {
			t.Errorf("row %d = %v/%q, want %v/%q", i, in.BatchID, in.BatchType, w.id, w.kind)
		}
	}
	if len(log.Extra) != 0 {
		t.Errorf("batch columns must not be pass-through, got %v", log.Extra)
	}
}

func TestCSVParser_Errors(t *testing.T) {
	header := "case_id,Activity,Resource,enabled_time,start_time,end_time\n"
	tests := []struct {
		name string
		data string
		code bferrors.Code
	}{
		{
			name: "missing column",
			data: "case_id,Activity,enabled_time,start_time,end_time\n1,A,2021-01-01,2021-01-01,2021-01-01\n",
			code: bferrors.CodeMissingColumn,
		},
		{
			name: "bad timestamp",
			data: header + "1,A,R,yesterday,2021-01-01,2021-01-01\n",
			code: bferrors.CodeInvalidTimestamp,
		},
		{
			name: "empty timestamp",
			data: header + "1,A,R,,2021-01-01,2021-01-01\n",
			code: bferrors.CodeInvalidTimestamp,
		},
		{
			name: "start before enabled",
			data: header + "1,A,R,2021-01-02,2021-01-01,2021-01-03\n",
			code: bferrors.CodeInvalidTimestamp,
		},
		{
			name: "end before start",
			data: header + "1,A,R,2021-01-01,2021-01-02,2021-01-01\n",
			code: bferrors.CodeInvalidTimestamp,
		},
		{
			name: "bad batch type",
			data: "case_id,Activity,Resource,enabled_time,start_time,end_time,batch_instance_type\n" +
				"1,A,R,2021-01-01,2021-01-01,2021-01-01,Bulk\n",
			code: bferrors.CodeParseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readCSV(t, tt.data, DefaultConfig())
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := bferrors.GetCode(err); got != tt.code {
				t.Errorf("code = %s, want %s (%v)", got, tt.code, err)
			}
		})
	}
}

func TestCSVParser_CustomSchema(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Delimiter = ';'
	cfg.Schema = schema.Default().Merge(schema.Schema{
		Case:            "case",
		Activity:        "task",
		Resource:        "user",
		TimestampFormat: "02.01.2006 15:04",
	})
	data := "case;task;user;enabled_time;start_time;end_time\r\n" +
		"7;Review;ann;01.02.2021 08:00;01.02.2021 09:00;01.02.2021 09:30\r\n"

	log, err := readCSV(t, data, cfg)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	in := log.Instances[0]
	if in.Case != "7" || in.Activity != "Review" || in.Resource != "ann" {
		t.Errorf("unexpected identity %+v", in)
	}
	if !in.Enabled.Equal(time.Date(2021, 2, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected enabled time %v", in.Enabled)
	}
}

func TestReadFile_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(sampleCSV)); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	f.Close()

	log, err := ReadFile(context.Background(), path, DefaultConfig())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if log.Len() != 3 {
		t.Errorf("expected 3 instances, got %d", log.Len())
	}
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadFile(context.Background(), filepath.Join(dir, "log.xes"), DefaultConfig()); !bferrors.IsCode(err, bferrors.CodeInvalidFormat) {
		t.Errorf("expected E103 for unsupported extension, got %v", err)
	}
	if _, err := ReadFile(context.Background(), filepath.Join(dir, "missing.csv"), DefaultConfig()); !bferrors.IsCode(err, bferrors.CodeFileNotFound) {
		t.Errorf("expected E101 for missing file, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"log.csv", FormatCSV},
		{"log.CSV.gz", FormatCSV},
		{"log.xlsx", FormatXLSX},
		{"data/log.parquet", FormatParquet},
		{"log.xes", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestCSVScanner(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{`a,b,c`, []string{"a", "b", "c"}},
		{`a,,c,`, []string{"a", "", "c", ""}},
		{`"x,y",z`, []string{"x,y", "z"}},
		{`"say ""hi""",1`, []string{`say "hi"`, "1"}},
		{`a,"b`, []string{"a", "b"}},
		{`,`, []string{"", ""}},
		{`"",x`, []string{"", "x"}},
	}
	s := NewCSVScanner(',')
	for _, tt := range tests {
		got := s.ScanLine([]byte(tt.line))
		if len(got) != len(tt.want) {
			t.Fatalf("ScanLine(%q) = %d fields, want %d", tt.line, len(got), len(tt.want))
		}
		for i := range got {
			if string(got[i]) != tt.want[i] {
				t.Errorf("ScanLine(%q)[%d] = %q, want %q", tt.line, i, got[i], tt.want[i])
			}
		}
	}
}

func TestSanitizeUTF8(t *testing.T) {
	valid := []byte("Zürich")
	if got := SanitizeUTF8(valid); &got[0] != &valid[0] {
		t.Error("valid input must be returned as is")
	}
	if got := string(SanitizeUTF8([]byte("a\xffb"))); got != "a\uFFFDb" {
		t.Errorf("SanitizeUTF8 = %q", got)
	}
}

func TestCSVParser_BOM(t *testing.T) {
	log, err := readCSV(t, "\xEF\xBB\xBF"+sampleCSV, DefaultConfig())
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if log.Len() != 3 {
		t.Errorf("expected 3 instances, got %d", log.Len())
	}
}

func TestXLSXParser(t *testing.T) {
	xl := excelize.NewFile()
	sheet := xl.GetSheetName(0)
	rows := [][]interface{}{
		{"case_id", "Activity", "Resource", "enabled_time", "start_time", "end_time"},
		{"1", "A", "R", "2021-01-01 09:00:00", "2021-01-01 09:00:00", "2021-01-01 10:00:00"},
		{},
		{"2", "A", "R", "2021-01-01 08:00:00", "2021-01-01 08:30:00", "2021-01-01 08:45:00"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := xl.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "log.xlsx")
	if err := xl.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	log, err := ReadFile(context.Background(), path, DefaultConfig())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if log.Len() != 2 {
		t.Fatalf("expected 2 instances, got %d", log.Len())
	}
	if log.Instances[0].Case != "2" {
		t.Errorf("expected start-time order, first case %q", log.Instances[0].Case)
	}
}
