package tabula

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// builtinFieldTypes returns the standard catalog. Order is irrelevant; the
// registry indexes by name.
func builtinFieldTypes() []FieldType {
	return []FieldType{
		&stringType{},
		&textType{},
		&integerType{},
		&floatType{},
		&decimalType{},
		&booleanType{},
		&datetimeType{},
		&emailType{},
		&urlType{},
		&listType{name: "list_string", label: "List (text)", integer: false},
		&listType{name: "list_integer", label: "List (integer)", integer: true},
		&referenceType{},
		&jsonType{},
	}
}

// datetime values are stored as a fixed-width timestamp string.
const datetimeLayout = "2006-01-02 15:04:05"

// ============================================================================
// Conversion helpers
// ============================================================================

func coerceString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}

func coerceInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		// JSON decodes every number to float64.
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off", "":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// coerceSlice normalizes single values and []any into a slice. Multi-valued
// types accept a scalar as a one-element list.
func coerceSlice(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{value}
	}
}

func single(v any) map[string]any {
	return map[string]any{"": v}
}

// ============================================================================
// string
// ============================================================================

type stringType struct{}

func (t *stringType) Name() string           { return "string" }
func (t *stringType) Label() string          { return "Text (short)" }
func (t *stringType) Composite() bool        { return false }
func (t *stringType) SupportsMultiple() bool { return false }

func (t *stringType) DefaultSettings() FieldSettings {
	return FieldSettings{"max_length": DefaultStringMaxLength}
}

func (t *stringType) maxLength(field *Field) int {
	if n := field.Settings.Int("max_length", 0); n > 0 {
		return n
	}
	return DefaultStringMaxLength
}

func (t *stringType) Columns(field *Field) []ColumnSpec {
	return []ColumnSpec{{
		Storage: StorageVarchar,
		Size:    t.maxLength(field),
		NotNull: field.Required,
	}}
}

func (t *stringType) Validate(field *Field, value any) error {
	s, ok := coerceString(value)
	if !ok {
		return NewValidationError(field.Name, "value must be a string")
	}
	if max := t.maxLength(field); len(s) > max {
		return NewValidationError(field.Name,
			fmt.Sprintf("value exceeds maximum length of %d characters", max))
	}
	return nil
}

func (t *stringType) Transform(field *Field, value any) (map[string]any, error) {
	s, ok := coerceString(value)
	if !ok {
		return nil, NewValidationError(field.Name, "value must be a string")
	}
	return single(s), nil
}

func (t *stringType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	return columns[""], nil
}

// ============================================================================
// text (composite value/format)
// ============================================================================

type textType struct{}

func (t *textType) Name() string                   { return "text" }
func (t *textType) Label() string                  { return "Text (long, formatted)" }
func (t *textType) Composite() bool                { return true }
func (t *textType) SupportsMultiple() bool         { return false }
func (t *textType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *textType) Columns(field *Field) []ColumnSpec {
	return []ColumnSpec{
		{Name: SuffixValue, Storage: StorageText, NotNull: field.Required},
		{Name: SuffixFormat, Storage: StorageVarchar, Size: 64},
	}
}

func (t *textType) Validate(field *Field, value any) error {
	switch v := value.(type) {
	case string:
		return nil
	case map[string]any:
		if _, ok := coerceString(v["value"]); !ok {
			return NewValidationError(field.Name, "text value must contain a 'value' string")
		}
		return nil
	default:
		return NewValidationError(field.Name, "value must be a string or {value, format} object")
	}
}

func (t *textType) Transform(field *Field, value any) (map[string]any, error) {
	switch v := value.(type) {
	case string:
		return map[string]any{SuffixValue: v, SuffixFormat: nil}, nil
	case map[string]any:
		body, ok := coerceString(v["value"])
		if !ok {
			return nil, NewValidationError(field.Name, "text value must contain a 'value' string")
		}
		var format any
		if f, ok := coerceString(v["format"]); ok && f != "" {
			format = f
		}
		return map[string]any{SuffixValue: body, SuffixFormat: format}, nil
	default:
		return nil, NewValidationError(field.Name, "value must be a string or {value, format} object")
	}
}

func (t *textType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	body := columns[SuffixValue]
	if body == nil {
		return nil, nil
	}
	if mode == FormatModePlain {
		return body, nil
	}
	out := map[string]any{"value": body}
	if f := columns[SuffixFormat]; f != nil {
		out["format"] = f
	}
	return out, nil
}

// ============================================================================
// integer
// ============================================================================

type integerType struct{}

func (t *integerType) Name() string                   { return "integer" }
func (t *integerType) Label() string                  { return "Integer" }
func (t *integerType) Composite() bool                { return false }
func (t *integerType) SupportsMultiple() bool         { return false }
func (t *integerType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *integerType) Columns(field *Field) []ColumnSpec {
	storage := StorageInteger
	switch field.Settings.String("size", "") {
	case "small":
		storage = StorageSmallInt
	case "big":
		storage = StorageBigInt
	}
	return []ColumnSpec{{Storage: storage, NotNull: field.Required}}
}

func (t *integerType) Validate(field *Field, value any) error {
	n, ok := coerceInt(value)
	if !ok {
		return NewValidationError(field.Name, "value must be an integer")
	}
	if min, set := field.Settings["min"]; set {
		if lo, ok := coerceInt(min); ok && n < lo {
			return NewValidationError(field.Name, fmt.Sprintf("value must be at least %d", lo))
		}
	}
	if max, set := field.Settings["max"]; set {
		if hi, ok := coerceInt(max); ok && n > hi {
			return NewValidationError(field.Name, fmt.Sprintf("value must be at most %d", hi))
		}
	}
	return nil
}

func (t *integerType) Transform(field *Field, value any) (map[string]any, error) {
	n, ok := coerceInt(value)
	if !ok {
		return nil, NewValidationError(field.Name, "value must be an integer")
	}
	return single(n), nil
}

func (t *integerType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	return columns[""], nil
}

// ============================================================================
// float
// ============================================================================

type floatType struct{}

func (t *floatType) Name() string                   { return "float" }
func (t *floatType) Label() string                  { return "Float" }
func (t *floatType) Composite() bool                { return false }
func (t *floatType) SupportsMultiple() bool         { return false }
func (t *floatType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *floatType) Columns(field *Field) []ColumnSpec {
	return []ColumnSpec{{Storage: StorageDouble, NotNull: field.Required}}
}

func (t *floatType) Validate(field *Field, value any) error {
	f, ok := coerceFloat(value)
	if !ok {
		return NewValidationError(field.Name, "value must be a number")
	}
	if min, set := field.Settings["min"]; set {
		if lo, ok := coerceFloat(min); ok && f < lo {
			return NewValidationError(field.Name, fmt.Sprintf("value must be at least %g", lo))
		}
	}
	if max, set := field.Settings["max"]; set {
		if hi, ok := coerceFloat(max); ok && f > hi {
			return NewValidationError(field.Name, fmt.Sprintf("value must be at most %g", hi))
		}
	}
	return nil
}

func (t *floatType) Transform(field *Field, value any) (map[string]any, error) {
	f, ok := coerceFloat(value)
	if !ok {
		return nil, NewValidationError(field.Name, "value must be a number")
	}
	return single(f), nil
}

func (t *floatType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	return columns[""], nil
}

// ============================================================================
// decimal
// ============================================================================

type decimalType struct{}

func (t *decimalType) Name() string           { return "decimal" }
func (t *decimalType) Label() string          { return "Decimal" }
func (t *decimalType) Composite() bool        { return false }
func (t *decimalType) SupportsMultiple() bool { return false }

func (t *decimalType) DefaultSettings() FieldSettings {
	return FieldSettings{
		"precision": DefaultDecimalPrecision,
		"scale":     DefaultDecimalScale,
	}
}

func (t *decimalType) dims(field *Field) (int, int) {
	p := field.Settings.Int("precision", DefaultDecimalPrecision)
	s := field.Settings.Int("scale", DefaultDecimalScale)
	if p <= 0 {
		p = DefaultDecimalPrecision
	}
	if s < 0 || s > p {
		s = DefaultDecimalScale
	}
	return p, s
}

func (t *decimalType) Columns(field *Field) []ColumnSpec {
	p, s := t.dims(field)
	return []ColumnSpec{{Storage: StorageNumeric, Precision: p, Scale: s, NotNull: field.Required}}
}

func (t *decimalType) Validate(field *Field, value any) error {
	if _, ok := coerceFloat(value); !ok {
		return NewValidationError(field.Name, "value must be a number")
	}
	return nil
}

func (t *decimalType) Transform(field *Field, value any) (map[string]any, error) {
	f, ok := coerceFloat(value)
	if !ok {
		return nil, NewValidationError(field.Name, "value must be a number")
	}
	_, scale := t.dims(field)
	return single(strconv.FormatFloat(f, 'f', scale, 64)), nil
}

func (t *decimalType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	return columns[""], nil
}

// ============================================================================
// boolean
// ============================================================================

type booleanType struct{}

func (t *booleanType) Name() string                   { return "boolean" }
func (t *booleanType) Label() string                  { return "Boolean" }
func (t *booleanType) Composite() bool                { return false }
func (t *booleanType) SupportsMultiple() bool         { return false }
func (t *booleanType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *booleanType) Columns(field *Field) []ColumnSpec {
	// Booleans are always not-null with a 0 default so three-valued logic
	// never leaks into filters.
	return []ColumnSpec{{Storage: StorageSmallInt, NotNull: true, Default: "0"}}
}

func (t *booleanType) Validate(field *Field, value any) error {
	if _, ok := coerceBool(value); !ok {
		return NewValidationError(field.Name, "value must be a boolean")
	}
	return nil
}

func (t *booleanType) Transform(field *Field, value any) (map[string]any, error) {
	b, ok := coerceBool(value)
	if !ok {
		return nil, NewValidationError(field.Name, "value must be a boolean")
	}
	if b {
		return single(int16(1)), nil
	}
	return single(int16(0)), nil
}

func (t *booleanType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	v := columns[""]
	if v == nil {
		return false, nil
	}
	n, _ := coerceInt(v)
	return n != 0, nil
}

// ============================================================================
// datetime
// ============================================================================

type datetimeType struct{}

func (t *datetimeType) Name() string                   { return "datetime" }
func (t *datetimeType) Label() string                  { return "Date and time" }
func (t *datetimeType) Composite() bool                { return false }
func (t *datetimeType) SupportsMultiple() bool         { return false }
func (t *datetimeType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *datetimeType) Columns(field *Field) []ColumnSpec {
	return []ColumnSpec{{Storage: StorageVarchar, Size: 20, NotNull: field.Required}}
}

func (t *datetimeType) parse(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{datetimeLayout, time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case int64:
		return time.Unix(v, 0).UTC(), true
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

func (t *datetimeType) Validate(field *Field, value any) error {
	if _, ok := t.parse(value); !ok {
		return NewValidationError(field.Name,
			fmt.Sprintf("value must be a timestamp in '%s' format", datetimeLayout))
	}
	return nil
}

func (t *datetimeType) Transform(field *Field, value any) (map[string]any, error) {
	ts, ok := t.parse(value)
	if !ok {
		return nil, NewValidationError(field.Name,
			fmt.Sprintf("value must be a timestamp in '%s' format", datetimeLayout))
	}
	return single(ts.UTC().Format(datetimeLayout)), nil
}

func (t *datetimeType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	return columns[""], nil
}

// ============================================================================
// email
// ============================================================================

type emailType struct{}

func (t *emailType) Name() string                   { return "email" }
func (t *emailType) Label() string                  { return "Email address" }
func (t *emailType) Composite() bool                { return false }
func (t *emailType) SupportsMultiple() bool         { return false }
func (t *emailType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *emailType) Columns(field *Field) []ColumnSpec {
	return []ColumnSpec{{Storage: StorageVarchar, Size: 254, NotNull: field.Required}}
}

func (t *emailType) Validate(field *Field, value any) error {
	s, ok := coerceString(value)
	if !ok {
		return NewValidationError(field.Name, "value must be a string")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return NewValidationError(field.Name, "value must be a valid email address")
	}
	return nil
}

func (t *emailType) Transform(field *Field, value any) (map[string]any, error) {
	s, ok := coerceString(value)
	if !ok {
		return nil, NewValidationError(field.Name, "value must be a string")
	}
	return single(strings.ToLower(strings.TrimSpace(s))), nil
}

func (t *emailType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	return columns[""], nil
}

// ============================================================================
// url (composite uri/title/options)
// ============================================================================

type urlType struct{}

func (t *urlType) Name() string                   { return "url" }
func (t *urlType) Label() string                  { return "Link" }
func (t *urlType) Composite() bool                { return true }
func (t *urlType) SupportsMultiple() bool         { return false }
func (t *urlType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *urlType) Columns(field *Field) []ColumnSpec {
	return []ColumnSpec{
		{Name: SuffixURI, Storage: StorageVarchar, Size: 2048, NotNull: field.Required},
		{Name: SuffixTitle, Storage: StorageVarchar, Size: DefaultStringMaxLength},
		{Name: SuffixOptions, Storage: StorageJSONB},
	}
}

func (t *urlType) uri(field *Field, value any) (string, map[string]any, error) {
	switch v := value.(type) {
	case string:
		return v, nil, nil
	case map[string]any:
		uri, ok := coerceString(v["uri"])
		if !ok || uri == "" {
			return "", nil, NewValidationError(field.Name, "link value must contain a 'uri' string")
		}
		return uri, v, nil
	default:
		return "", nil, NewValidationError(field.Name, "value must be a URL string or {uri, title, options} object")
	}
}

func (t *urlType) Validate(field *Field, value any) error {
	uri, _, err := t.uri(field, value)
	if err != nil {
		return err
	}
	parsed, err2 := url.Parse(uri)
	if err2 != nil || parsed.Scheme == "" || parsed.Host == "" {
		return NewValidationError(field.Name, "value must be an absolute URL")
	}
	return nil
}

func (t *urlType) Transform(field *Field, value any) (map[string]any, error) {
	uri, obj, err := t.uri(field, value)
	if err != nil {
		return nil, err
	}
	out := map[string]any{SuffixURI: uri, SuffixTitle: nil, SuffixOptions: nil}
	if obj != nil {
		if title, ok := coerceString(obj["title"]); ok && title != "" {
			out[SuffixTitle] = title
		}
		if opts, ok := obj["options"].(map[string]any); ok && len(opts) > 0 {
			encoded, err := json.Marshal(opts)
			if err != nil {
				return nil, NewValidationError(field.Name, "link options must be JSON-encodable")
			}
			out[SuffixOptions] = string(encoded)
		}
	}
	return out, nil
}

func (t *urlType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	uri := columns[SuffixURI]
	if uri == nil {
		return nil, nil
	}
	if mode == FormatModePlain {
		return uri, nil
	}
	out := map[string]any{"uri": uri}
	if title := columns[SuffixTitle]; title != nil {
		out["title"] = title
	}
	if raw := columns[SuffixOptions]; raw != nil {
		var opts map[string]any
		switch v := raw.(type) {
		case string:
			_ = json.Unmarshal([]byte(v), &opts)
		case []byte:
			_ = json.Unmarshal(v, &opts)
		case map[string]any:
			opts = v
		}
		if len(opts) > 0 {
			out["options"] = opts
		}
	}
	return out, nil
}

// ============================================================================
// list_string / list_integer
// ============================================================================

type listType struct {
	name    string
	label   string
	integer bool
}

func (t *listType) Name() string                   { return t.name }
func (t *listType) Label() string                  { return t.label }
func (t *listType) Composite() bool                { return false }
func (t *listType) SupportsMultiple() bool         { return true }
func (t *listType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *listType) multiple(field *Field) bool {
	return field.Settings.Bool("multiple", false)
}

func (t *listType) Columns(field *Field) []ColumnSpec {
	if t.multiple(field) {
		return []ColumnSpec{{Storage: StorageJSONB, NotNull: field.Required}}
	}
	if t.integer {
		return []ColumnSpec{{Storage: StorageInteger, NotNull: field.Required}}
	}
	return []ColumnSpec{{Storage: StorageVarchar, Size: DefaultStringMaxLength, NotNull: field.Required}}
}

// key normalizes one list value to its allowed-value key form.
func (t *listType) key(field *Field, value any) (any, error) {
	if t.integer {
		n, ok := coerceInt(value)
		if !ok {
			return nil, NewValidationError(field.Name, "list value must be an integer")
		}
		return n, nil
	}
	s, ok := coerceString(value)
	if !ok {
		return nil, NewValidationError(field.Name, "list value must be a string")
	}
	return s, nil
}

func (t *listType) allowed(field *Field) map[string]string {
	return field.Settings.StringMap("allowed_values")
}

func (t *listType) checkAllowed(field *Field, key any) error {
	allowed := t.allowed(field)
	if len(allowed) == 0 {
		return nil
	}
	k := fmt.Sprintf("%v", key)
	if _, ok := allowed[k]; !ok {
		return NewValidationError(field.Name,
			fmt.Sprintf("value '%s' is not in the allowed values list", k))
	}
	return nil
}

func (t *listType) Validate(field *Field, value any) error {
	values := coerceSlice(value)
	if !t.multiple(field) && len(values) > 1 {
		return NewValidationError(field.Name, "field does not accept multiple values")
	}
	for _, v := range values {
		k, err := t.key(field, v)
		if err != nil {
			return err
		}
		if err := t.checkAllowed(field, k); err != nil {
			return err
		}
	}
	return nil
}

func (t *listType) Transform(field *Field, value any) (map[string]any, error) {
	values := coerceSlice(value)
	if t.multiple(field) {
		keys := make([]any, 0, len(values))
		for _, v := range values {
			k, err := t.key(field, v)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		encoded, err := json.Marshal(keys)
		if err != nil {
			return nil, NewInternalError("encoding list values", err)
		}
		return single(string(encoded)), nil
	}
	if len(values) != 1 {
		return nil, NewValidationError(field.Name, "field requires exactly one value")
	}
	k, err := t.key(field, values[0])
	if err != nil {
		return nil, err
	}
	return single(k), nil
}

func (t *listType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	v := columns[""]
	if v == nil {
		return nil, nil
	}
	var keys []any
	if t.multiple(field) {
		switch raw := v.(type) {
		case string:
			if err := json.Unmarshal([]byte(raw), &keys); err != nil {
				return v, nil
			}
		case []byte:
			if err := json.Unmarshal(raw, &keys); err != nil {
				return v, nil
			}
		case []any:
			keys = raw
		default:
			return v, nil
		}
	} else {
		keys = []any{v}
	}
	if mode == FormatModeDisplay {
		if allowed := t.allowed(field); len(allowed) > 0 {
			labels := make([]any, len(keys))
			for i, k := range keys {
				if label, ok := allowed[fmt.Sprintf("%v", k)]; ok {
					labels[i] = label
				} else {
					labels[i] = k
				}
			}
			keys = labels
		}
	}
	if !t.multiple(field) {
		return keys[0], nil
	}
	return keys, nil
}

// ============================================================================
// reference
// ============================================================================

type referenceType struct{}

func (t *referenceType) Name() string                   { return "reference" }
func (t *referenceType) Label() string                  { return "Reference" }
func (t *referenceType) Composite() bool                { return false }
func (t *referenceType) SupportsMultiple() bool         { return true }
func (t *referenceType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *referenceType) multiple(field *Field) bool {
	return field.Settings.Bool("multiple", false)
}

func (t *referenceType) Columns(field *Field) []ColumnSpec {
	if t.multiple(field) {
		return []ColumnSpec{{Storage: StorageJSONB, NotNull: field.Required}}
	}
	return []ColumnSpec{{Storage: StorageBigInt, NotNull: field.Required}}
}

func (t *referenceType) Validate(field *Field, value any) error {
	if field.Settings.String("target_type", "") == "" {
		return NewValidationError(field.Name, "reference field is missing a target_type setting")
	}
	values := coerceSlice(value)
	if !t.multiple(field) && len(values) > 1 {
		return NewValidationError(field.Name, "field does not accept multiple references")
	}
	for _, v := range values {
		if _, ok := coerceInt(v); !ok {
			return NewValidationError(field.Name, "reference value must be a target id")
		}
	}
	return nil
}

func (t *referenceType) Transform(field *Field, value any) (map[string]any, error) {
	values := coerceSlice(value)
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, ok := coerceInt(v)
		if !ok {
			return nil, NewValidationError(field.Name, "reference value must be a target id")
		}
		ids = append(ids, id)
	}
	if t.multiple(field) {
		encoded, err := json.Marshal(ids)
		if err != nil {
			return nil, NewInternalError("encoding reference ids", err)
		}
		return single(string(encoded)), nil
	}
	if len(ids) != 1 {
		return nil, NewValidationError(field.Name, "field requires exactly one reference")
	}
	return single(ids[0]), nil
}

func (t *referenceType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	v := columns[""]
	if v == nil {
		return nil, nil
	}
	if !t.multiple(field) {
		if id, ok := coerceInt(v); ok {
			return id, nil
		}
		return v, nil
	}
	var ids []int64
	switch raw := v.(type) {
	case string:
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return v, nil
		}
	case []byte:
		if err := json.Unmarshal(raw, &ids); err != nil {
			return v, nil
		}
	default:
		return v, nil
	}
	return ids, nil
}

// TargetIDs extracts the stored reference ids from a raw column value,
// tolerating both the single-id and the JSON-array encoding. Used by the
// reference resolver on read paths.
func TargetIDs(value any) []int64 {
	switch v := value.(type) {
	case nil:
		return nil
	case int64:
		return []int64{v}
	case int:
		return []int64{int64(v)}
	case int32:
		return []int64{int64(v)}
	case float64:
		return []int64{int64(v)}
	case string:
		var ids []int64
		if err := json.Unmarshal([]byte(v), &ids); err == nil {
			return ids
		}
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return []int64{id}
		}
		return nil
	case []byte:
		var ids []int64
		if err := json.Unmarshal(v, &ids); err == nil {
			return ids
		}
		return nil
	case []any:
		out := make([]int64, 0, len(v))
		for _, e := range v {
			if id, ok := coerceInt(e); ok {
				out = append(out, id)
			}
		}
		return out
	default:
		return nil
	}
}

// ============================================================================
// json
// ============================================================================

type jsonType struct{}

func (t *jsonType) Name() string                   { return "json" }
func (t *jsonType) Label() string                  { return "JSON" }
func (t *jsonType) Composite() bool                { return false }
func (t *jsonType) SupportsMultiple() bool         { return false }
func (t *jsonType) DefaultSettings() FieldSettings { return FieldSettings{} }

func (t *jsonType) Columns(field *Field) []ColumnSpec {
	return []ColumnSpec{{Storage: StorageJSONB, NotNull: field.Required}}
}

func (t *jsonType) encode(field *Field, value any) (string, error) {
	if s, ok := value.(string); ok {
		if !json.Valid([]byte(s)) {
			return "", NewValidationError(field.Name, "value must be valid JSON")
		}
		return s, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", NewValidationError(field.Name, "value must be JSON-encodable")
	}
	return string(encoded), nil
}

func (t *jsonType) Validate(field *Field, value any) error {
	encoded, err := t.encode(field, value)
	if err != nil {
		return err
	}
	if schema := field.Settings.String("schema", ""); schema != "" {
		return validateJSONSchema(field.Name, schema, encoded)
	}
	return nil
}

func (t *jsonType) Transform(field *Field, value any) (map[string]any, error) {
	encoded, err := t.encode(field, value)
	if err != nil {
		return nil, err
	}
	return single(encoded), nil
}

func (t *jsonType) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	v := columns[""]
	if v == nil {
		return nil, nil
	}
	var decoded any
	switch raw := v.(type) {
	case string:
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return raw, nil
		}
	case []byte:
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return string(raw), nil
		}
	default:
		return v, nil
	}
	return decoded, nil
}
