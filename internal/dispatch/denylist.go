package dispatch

import "strings"

// forbiddenScriptPatterns are substrings a Macro's command body must not
// contain, per the broker's script-content denylist.
var forbiddenScriptPatterns = []string{"eval(", "localStorage", "sessionStorage"}

// CheckScriptDenylist is a pure predicate invoked by the dispatcher's
// validateParams step for POST /entity/create when entityType is "Macro".
// It returns nil when command is acceptable, or a ValidationError carrying
// the machine-readable rejection otherwise.
func CheckScriptDenylist(command string) *ValidationError {
	for _, pattern := range forbiddenScriptPatterns {
		if strings.Contains(command, pattern) {
			return &ValidationError{
				Error:      "Script contains forbidden patterns",
				Suggestion: "Ensure the script does not access localStorage, sessionStorage, or eval()",
			}
		}
	}
	return nil
}
