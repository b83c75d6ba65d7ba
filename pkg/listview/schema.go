// Package listview binds a filter form to a paginated list query. One
// Controller serves every list screen; screens differ only in their Schema.
package listview

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sternrassler/contesthub-client/pkg/contests"
	"github.com/Sternrassler/contesthub-client/pkg/pagination"
	"github.com/go-playground/validator/v10"
)

// AllValue is the filter value that matches everything.
const AllValue = "all"

// Common field names.
const (
	FieldSearch = "search"
	FieldStatus = "status"
	FieldType   = "type"
)

var (
	// ErrUnknownField is returned by Set for a field the schema does not define.
	ErrUnknownField = errors.New("unknown filter field")

	// ErrInvalidSchema is returned by NewController for a malformed schema.
	ErrInvalidSchema = errors.New("invalid list schema")
)

// Field is one filter input of a list screen.
type Field struct {
	// Name is the form field and the query parameter
	Name string

	// Default is the value on mount and after a reset
	Default string

	// Rules is a validator tag, e.g. "max=100,safetext"
	Rules string

	// Debounced fields propagate only after the input settles
	Debounced bool

	// Clearable fields go back to AllValue on ClearFilters
	Clearable bool
}

// Schema describes a list screen.
type Schema struct {
	Resource string
	PageSize int
	Fields   []Field
}

// Field returns the field called name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns the default value of every field.
func (s Schema) Defaults() map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Default
	}
	return out
}

// Validate checks the schema itself, not the field values.
func (s Schema) Validate() error {
	if s.PageSize < 0 {
		return fmt.Errorf("%w: page size must be >= 0 (got %d)", ErrInvalidSchema, s.PageSize)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Name {
		case "", "page", "limit":
			return fmt.Errorf("%w: reserved or empty field name %q", ErrInvalidSchema, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		seen[f.Name] = true
		if f.Default != "" {
			if err := CheckField(f, f.Default); err != nil {
				return fmt.Errorf("%w: default of %q: %v", ErrInvalidSchema, f.Name, err)
			}
		}
	}
	return nil
}

// ValidationError is a rejected filter value.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("filter %q: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	validate = newValidator()

	unsafeMarkup = regexp.MustCompile(`(?i)(<\s*/?\s*script|javascript\s*:|\bon[a-z]+\s*=)`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("safetext", safeText); err != nil {
		panic(fmt.Sprintf("register safetext: %v", err))
	}
	return v
}

// safeText rejects markup and script injection in free text.
func safeText(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.ContainsAny(s, "<>{}`") {
		return false
	}
	return !unsafeMarkup.MatchString(s)
}

// CheckField validates value against the field's rules. An empty value is
// always accepted.
func CheckField(f Field, value string) error {
	if value == "" || f.Rules == "" {
		return nil
	}
	err := validate.Var(value, f.Rules)
	if err == nil {
		return nil
	}

	msg := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msg = ruleMessage(verrs[0])
	}
	return &ValidationError{Field: f.Name, Value: value, Message: msg, Err: err}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "safetext":
		return "contains disallowed characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed rule " + fe.Tag()
	}
}

// Filter value sets.
var (
	ContestTypes   = []string{"Design", "Writing", "Development", "Marketing", "Content Writing"}
	ContestStatus  = []string{"Pending", "Confirmed", "Rejected"}
	UserRoles      = []string{"user", "creator", "admin"}
	searchRules    = "max=100,safetext"
	contestTypeTag = oneOf(ContestTypes)
)

// oneOf builds a oneof rule that also accepts AllValue. Values with spaces
// are quoted.
func oneOf(values []string) string {
	parts := []string{AllValue}
	for _, v := range values {
		if strings.ContainsRune(v, ' ') {
			v = "'" + v + "'"
		}
		parts = append(parts, v)
	}
	return "oneof=" + strings.Join(parts, " ")
}

func searchField() Field {
	return Field{Name: FieldSearch, Rules: searchRules, Debounced: true}
}

func enumField(name string, values []string) Field {
	return Field{Name: name, Default: AllValue, Rules: oneOf(values), Clearable: true}
}

// ContestsSchema is the public contest listing.
func ContestsSchema() Schema {
	return Schema{
		Resource: contests.ResourceContests,
		PageSize: pagination.DefaultPageSize,
		Fields: []Field{
			searchField(),
			enumField(FieldStatus, ContestStatus),
			{Name: FieldType, Default: AllValue, Rules: contestTypeTag, Clearable: true},
		},
	}
}

// CreatedContestsSchema lists the contests of the signed-in creator.
func CreatedContestsSchema() Schema {
	return Schema{
		Resource: contests.ResourceCreatorContests,
		PageSize: pagination.DefaultPageSize,
		Fields: []Field{
			searchField(),
			enumField(FieldStatus, ContestStatus),
			{Name: FieldType, Default: AllValue, Rules: contestTypeTag, Clearable: true},
		},
	}
}

// SubmittedTasksSchema lists submissions to the creator's contests.
func SubmittedTasksSchema() Schema {
	return Schema{
		Resource: contests.ResourceCreatorSubmissions,
		PageSize: pagination.DefaultPageSize,
		Fields: []Field{
			searchField(),
			{Name: FieldType, Default: AllValue, Rules: contestTypeTag, Clearable: true},
		},
	}
}

// ManageUsersSchema is the admin user table; type filters by role.
func ManageUsersSchema() Schema {
	return Schema{
		Resource: contests.ResourceAdminUsers,
		PageSize: pagination.DefaultPageSize,
		Fields: []Field{
			searchField(),
			enumField(FieldType, UserRoles),
		},
	}
}

// ParticipatedSchema lists contests the user joined. Without a uid the
// schema has no resource and its queries stay idle.
func ParticipatedSchema(uid string) Schema {
	return Schema{
		Resource: contests.ParticipatedResource(uid),
		PageSize: pagination.DefaultPageSize,
	}
}

// WinningSchema lists contests the user won.
func WinningSchema(uid string) Schema {
	return Schema{
		Resource: contests.WinningResource(uid),
		PageSize: pagination.DefaultPageSize,
	}
}
