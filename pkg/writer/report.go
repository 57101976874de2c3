package writer

import (
	"encoding/json"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/logflow/batchflow/pkg/discovery"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/util"
)

// ReportFormat is the encoding of a discovery report.
type ReportFormat string

const (
	ReportJSON ReportFormat = "json"
	ReportYAML ReportFormat = "yaml"
)

// DetectReportFormat picks YAML for .yaml/.yml paths and JSON otherwise.
func DetectReportFormat(path string) ReportFormat {
	switch strings.TrimPrefix(util.BaseFormat(path), ".") {
	case "yaml", "yml":
		return ReportYAML
	default:
		return ReportJSON
	}
}

// WriteReport encodes r to w.
func WriteReport(w io.Writer, r *discovery.Report, format ReportFormat) error {
	var err error
	switch format {
	case ReportYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(r); err == nil {
			err = enc.Close()
		}
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	}
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot encode report")
	}
	return nil
}
