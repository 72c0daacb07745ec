package modules

import (
	"testing"
)

func TestValidateParams_RequiredFields(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"repositoryId": {Type: "string", Description: "Repository ID"},
			"filePath":     {Type: "string", Description: "File path"},
		},
		Required: []string{"repositoryId", "filePath"},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
		errMsg  string
	}{
		{
			name:    "all required present",
			params:  map[string]any{"repositoryId": "repo", "filePath": "/a.go"},
			wantErr: false,
		},
		{
			name:    "missing one required",
			params:  map[string]any{"repositoryId": "repo"},
			wantErr: true,
			errMsg:  "missing required parameter(s): filePath",
		},
		{
			name:    "missing all required",
			params:  map[string]any{},
			wantErr: true,
			errMsg:  "missing required parameter(s): repositoryId, filePath",
		},
		{
			name:    "nil params",
			params:  nil,
			wantErr: true,
			errMsg:  "missing required parameter(s): repositoryId, filePath",
		},
		{
			name:    "empty string for required field",
			params:  map[string]any{"repositoryId": "", "filePath": "/a.go"},
			wantErr: true,
			errMsg:  "missing required parameter(s): repositoryId",
		},
		{
			name:    "nil value for required field",
			params:  map[string]any{"repositoryId": nil, "filePath": "/a.go"},
			wantErr: true,
			errMsg:  "missing required parameter(s): repositoryId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(schema, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateParams_TypeCheck(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"name":     {Type: "string"},
			"count":    {Type: "number"},
			"enabled":  {Type: "boolean"},
			"tags":     {Type: "array"},
			"metadata": {Type: "object"},
		},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
		errMsg  string
	}{
		{
			name:    "all correct types",
			params:  map[string]any{"name": "test", "count": float64(5), "enabled": true, "tags": []interface{}{"a"}, "metadata": map[string]interface{}{"k": "v"}},
			wantErr: false,
		},
		{
			name:    "string where number expected",
			params:  map[string]any{"count": "five"},
			wantErr: true,
			errMsg:  `parameter "count": expected number, got string`,
		},
		{
			name:    "number where string expected",
			params:  map[string]any{"name": float64(42)},
			wantErr: true,
			errMsg:  `parameter "name": expected string, got float64`,
		},
		{
			name:    "string where boolean expected",
			params:  map[string]any{"enabled": "true"},
			wantErr: true,
			errMsg:  `parameter "enabled": expected boolean, got string`,
		},
		{
			name:    "string where array expected",
			params:  map[string]any{"tags": "not-array"},
			wantErr: true,
			errMsg:  `parameter "tags": expected array, got string`,
		},
		{
			name:    "string where object expected",
			params:  map[string]any{"metadata": "not-object"},
			wantErr: true,
			errMsg:  `parameter "metadata": expected object, got string`,
		},
		{
			name:    "extra params not in schema pass through",
			params:  map[string]any{"unknown_field": "whatever"},
			wantErr: false,
		},
		{
			name:    "nil value skips type check",
			params:  map[string]any{"name": nil},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateParams(schema, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateParams_NoRequiredNoProperties(t *testing.T) {
	// Schema with no required and no properties (e.g., azure_devops_projects)
	schema := InputSchema{
		Type:       "object",
		Properties: map[string]Property{},
	}

	result, err := ValidateParams(schema, map[string]any{})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result == nil {
		t.Errorf("expected non-nil result")
	}
}

func TestValidateParams_IntegerType(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"page": {Type: "integer"},
		},
	}

	// float64 is accepted for "integer" (JSON numbers are always float64)
	_, err := ValidateParams(schema, map[string]any{"page": float64(3)})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// string is rejected for "integer"
	_, err = ValidateParams(schema, map[string]any{"page": "three"})
	if err == nil {
		t.Errorf("expected error for string as integer")
	}

	// fractions are rejected for "integer"
	_, err = ValidateParams(schema, map[string]any{"page": 2.5})
	if err == nil {
		t.Errorf("expected error for fractional integer")
	}
}

func TestValidateParams_ArrayItems(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"ids": {Type: "array", Items: &Property{Type: "integer"}},
		},
		Required: []string{"ids"},
	}

	if _, err := ValidateParams(schema, map[string]any{"ids": []any{float64(1), float64(2)}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	_, err := ValidateParams(schema, map[string]any{"ids": []any{float64(1), "two"}})
	if err == nil {
		t.Fatal("expected error for non-integer element")
	}
	if err.Error() != `parameter "ids[1]": expected integer, got string` {
		t.Errorf("unexpected error %q", err.Error())
	}
}

func TestValidateParams_Defaults(t *testing.T) {
	schema := InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"length":          {Type: "integer", Default: float64(100000)},
			"returnPlainText": {Type: "boolean", Default: true},
		},
	}

	params := map[string]any{"length": float64(10)}
	got, err := ValidateParams(schema, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["length"] != float64(10) {
		t.Errorf("length = %v, want 10", got["length"])
	}
	if got["returnPlainText"] != true {
		t.Errorf("returnPlainText = %v, want true", got["returnPlainText"])
	}
	if _, mutated := params["returnPlainText"]; mutated {
		t.Error("input params must not be modified")
	}
}

func TestFindTool(t *testing.T) {
	tools := []Tool{
		{Name: "azure_devops_projects", Description: "List all projects"},
		{Name: "azure_devops_work_item", Description: "Get a work item by ID"},
	}

	tool, found := findTool(tools, "azure_devops_work_item")
	if !found {
		t.Fatal("expected to find azure_devops_work_item")
	}
	if tool.Description != "Get a work item by ID" {
		t.Errorf("unexpected description %q", tool.Description)
	}

	_, found = findTool(tools, "nonexistent")
	if found {
		t.Error("expected not to find nonexistent tool")
	}
}
