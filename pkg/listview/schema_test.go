package listview

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckField(t *testing.T) {
	schema := ContestsSchema()
	search, _ := schema.Field(FieldSearch)
	typ, _ := schema.Field(FieldType)
	status, _ := schema.Field(FieldStatus)

	tests := []struct {
		name    string
		field   Field
		value   string
		wantErr string
	}{
		{name: "empty search", field: search, value: ""},
		{name: "plain search", field: search, value: "logo design 2025"},
		{name: "script tag", field: search, value: "<script>", wantErr: "contains disallowed characters"},
		{name: "template braces", field: search, value: "{{constructor}}", wantErr: "contains disallowed characters"},
		{name: "javascript url", field: search, value: "javascript:alert(1)", wantErr: "contains disallowed characters"},
		{name: "event handler", field: search, value: "x onerror=alert(1)", wantErr: "contains disallowed characters"},
		{name: "too long", field: search, value: strings.Repeat("a", 101), wantErr: "at most 100"},
		{name: "type all", field: typ, value: "all"},
		{name: "type with space", field: typ, value: "Content Writing"},
		{name: "type unknown", field: typ, value: "Cooking", wantErr: "must be one of"},
		{name: "status confirmed", field: status, value: "Confirmed"},
		{name: "status lowercase", field: status, value: "confirmed", wantErr: "must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckField(tt.field, tt.value)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field.Name, verr.Field)
			assert.Equal(t, tt.value, verr.Value)
			assert.Contains(t, verr.Message, tt.wantErr)
		})
	}
}

func TestOneOf(t *testing.T) {
	assert.Equal(t, "oneof=all Design 'Content Writing'", oneOf([]string{"Design", "Content Writing"}))
}

func TestSchemas(t *testing.T) {
	tests := []struct {
		name       string
		schema     Schema
		resource   string
		fields     []string
		debounced  []string
		clearables []string
	}{
		{
			name:       "contests",
			schema:     ContestsSchema(),
			resource:   "/api/contests",
			fields:     []string{"search", "status", "type"},
			debounced:  []string{"search"},
			clearables: []string{"status", "type"},
		},
		{
			name:       "created contests",
			schema:     CreatedContestsSchema(),
			resource:   "/api/creator/contests",
			fields:     []string{"search", "status", "type"},
			debounced:  []string{"search"},
			clearables: []string{"status", "type"},
		},
		{
			name:       "submitted tasks",
			schema:     SubmittedTasksSchema(),
			resource:   "/api/creator/submissions",
			fields:     []string{"search", "type"},
			debounced:  []string{"search"},
			clearables: []string{"type"},
		},
		{
			name:       "manage users",
			schema:     ManageUsersSchema(),
			resource:   "/api/admin/users",
			fields:     []string{"search", "type"},
			debounced:  []string{"search"},
			clearables: []string{"type"},
		},
		{
			name:     "participated",
			schema:   ParticipatedSchema("u1"),
			resource: "/api/users/u1/participated",
		},
		{
			name:     "winning without user",
			schema:   WinningSchema(""),
			resource: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.schema.Validate())
			assert.Equal(t, tt.resource, tt.schema.Resource)
			assert.Equal(t, 10, tt.schema.PageSize)

			var fields, debounced, clearables []string
			for _, f := range tt.schema.Fields {
				fields = append(fields, f.Name)
				if f.Debounced {
					debounced = append(debounced, f.Name)
				}
				if f.Clearable {
					clearables = append(clearables, f.Name)
					assert.Equal(t, AllValue, f.Default)
				}
			}
			assert.Equal(t, tt.fields, fields)
			assert.Equal(t, tt.debounced, debounced)
			assert.Equal(t, tt.clearables, clearables)
		})
	}
}

func TestSchemaValidate_RejectsBadDefault(t *testing.T) {
	s := Schema{Resource: "/x", Fields: []Field{{Name: "type", Default: "Cooking", Rules: oneOf(ContestTypes)}}}
	assert.ErrorIs(t, s.Validate(), ErrInvalidSchema)

	s = Schema{Resource: "/x", PageSize: -1}
	assert.ErrorIs(t, s.Validate(), ErrInvalidSchema)
}
