package bot

import (
	"strings"

	"github.com/frostpeak/gatewarden/types"
)

const (
	approvePrefix = "wlreq-approve-"
	denyPrefix    = "wlreq-deny-"
)

// decisionCustomID encodes the decision and request id into the component
// custom id attached to the review buttons.
func decisionCustomID(decision types.Decision, requestID string) string {
	if decision == types.Approve {
		return approvePrefix + requestID
	}
	return denyPrefix + requestID
}

// parseDecisionCustomID turns a clicked button's custom id back into a typed
// decision and request id. This is the only place the token string is
// inspected; everything downstream works with the parsed values.
func parseDecisionCustomID(customID string) (types.Decision, string, bool) {
	switch {
	case strings.HasPrefix(customID, approvePrefix):
		return types.Approve, strings.TrimPrefix(customID, approvePrefix), true
	case strings.HasPrefix(customID, denyPrefix):
		return types.Deny, strings.TrimPrefix(customID, denyPrefix), true
	}
	return 0, "", false
}
