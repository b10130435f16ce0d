package filters

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

//go:embed filterset.schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// FieldError is a single problem found in a filter document.
type FieldError struct {
	Field   string
	Message string
}

// FilterSchemaError reports a malformed filter document. It blocks loading
// that job's filters; no filter is dropped silently.
type FilterSchemaError struct {
	JobKey string
	Errors []FieldError
}

func (e *FilterSchemaError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid screening filters for job %q:", e.JobKey)
	for i, fe := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s: %s", i+1, fe.Field, fe.Message)
	}
	return sb.String()
}

type filterDoc struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	When      string             `json:"when"`
	Action    model.FilterAction `json:"action"`
	Enabled   *bool              `json:"enabled"`
	Source    model.FilterSource `json:"source"`
	Rationale *string            `json:"rationale"`
	CreatedAt *time.Time         `json:"created_at"`
}

type setDoc struct {
	Version   int         `json:"version"`
	UpdatedAt *time.Time  `json:"updated_at"`
	Filters   []filterDoc `json:"filters"`
}

// decode validates a raw filter-set document and converts it, applying
// defaults (enabled=true, source=human).
func decode(jobKey string, data []byte) (*model.FilterSet, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &FilterSchemaError{JobKey: jobKey, Errors: []FieldError{{Field: "(document)", Message: err.Error()}}}
	}
	if !result.Valid() {
		schemaErr := &FilterSchemaError{JobKey: jobKey}
		for _, re := range result.Errors() {
			schemaErr.Errors = append(schemaErr.Errors, FieldError{Field: re.Field(), Message: re.Description()})
		}
		return nil, schemaErr
	}

	var doc setDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &FilterSchemaError{JobKey: jobKey, Errors: []FieldError{{Field: "(document)", Message: err.Error()}}}
	}

	set := &model.FilterSet{Version: doc.Version, UpdatedAt: doc.UpdatedAt}
	for _, fd := range doc.Filters {
		f := model.ScreeningFilter{
			ID:        fd.ID,
			Title:     fd.Title,
			When:      fd.When,
			Action:    fd.Action,
			Enabled:   fd.Enabled == nil || *fd.Enabled,
			Source:    fd.Source,
			CreatedAt: fd.CreatedAt,
		}
		if fd.Rationale != nil {
			f.Rationale = *fd.Rationale
		}
		if f.Source == "" {
			f.Source = model.SourceHuman
		}
		set.Filters = append(set.Filters, f)
	}

	if errs := checkSet(set); len(errs) > 0 {
		return nil, &FilterSchemaError{JobKey: jobKey, Errors: errs}
	}
	return set, nil
}

// checkSet covers the rules a JSON schema cannot express.
func checkSet(set *model.FilterSet) []FieldError {
	var errs []FieldError
	seen := map[string]bool{}
	for i, f := range set.Filters {
		field := fmt.Sprintf("filters.%d", i)
		if seen[f.ID] {
			errs = append(errs, FieldError{Field: field + ".id", Message: fmt.Sprintf("duplicate filter id %q", f.ID)})
		}
		seen[f.ID] = true
		if f.Action.Empty() {
			errs = append(errs, FieldError{Field: field + ".action", Message: "action must set, cap or deduct"})
		}
	}
	return errs
}
