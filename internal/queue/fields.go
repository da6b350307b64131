package queue

import (
	"fmt"
	"sort"
	"strings"
)

// Fields carries caller-supplied column assignments applied together with a
// status transition, e.g. a measured duration or an output path. Assignments
// are restricted to a fixed allowlist of non-enum columns and are always bound
// as statement parameters; callers can never reach stage, status, or identity
// columns through this mechanism.
type Fields map[string]any

var assignableColumns = func() map[string]struct{} {
	columns := []string{
		"filename",
		"config",
		"metadata",
		"local_path",
		"processed_output",
		"infer_logs",
	}
	for _, stage := range allStages {
		columns = append(columns, TimeColumn(stage))
	}
	set := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		set[column] = struct{}{}
	}
	return set
}()

// AssignableColumns returns the sorted allowlist of columns Fields may set.
func AssignableColumns() []string {
	columns := make([]string, 0, len(assignableColumns))
	for column := range assignableColumns {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// setClauses renders the deterministic "col = ?, col = ?" fragment and the
// matching argument slice for the field map. An empty map yields an empty
// fragment and no arguments.
func (f Fields) setClauses() (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	columns := make([]string, 0, len(f))
	for column := range f {
		if _, ok := assignableColumns[column]; !ok {
			return "", nil, fmt.Errorf("column %q is not assignable through extra fields", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	var sb strings.Builder
	args := make([]any, 0, len(columns))
	for i, column := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(column)
		sb.WriteString(" = ?")
		args = append(args, f[column])
	}
	return sb.String(), args, nil
}
