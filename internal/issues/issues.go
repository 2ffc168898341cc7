// Package issues defines the structured, non-fatal problem reports attached
// to rows during execution. Issues never abort a batch; callers receive the
// full list alongside the output documents.
package issues

// Execution issue codes.
const (
	OpExec           = "E_OP_EXEC"
	OpBudgetExceeded = "E_OP_BUDGET_EXCEEDED"
	RegexGuard       = "E_REGEX_GUARD"
	RegexError       = "E_REGEX_ERROR"
	DateParseFail    = "E_DATE_PARSE_FAIL"
	GeoLatRange      = "E_GEO_LAT_RANGE"
	GeoLonRange      = "E_GEO_LON_RANGE"
	IDConflict       = "E_ID_CONFLICT"
	WarnOpUnknown    = "W_OP_UNKNOWN"
)

// Issue reports one non-fatal problem for one row and field.
type Issue struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
}
