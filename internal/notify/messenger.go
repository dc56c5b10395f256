// Package notify defines the push-notification boundary. Delivery is
// always best-effort: a failed or missing messenger never affects linking
// outcome.
package notify

import "context"

// Messenger delivers a push notification to all of a user's devices.
type Messenger interface {
	Send(ctx context.Context, userID, title, body string, data map[string]string) error
}

// MFAPendingData is attached to the MFA notification so the client app can
// deep-link straight into the login form.
func MFAPendingData(accountLinkID string) map[string]string {
	return map[string]string{
		"kind":           "mfa_pending",
		"accountLinkRef": accountLinkID,
	}
}
