package models

import "strings"

// LinkStatus is the closed set of semantic statuses an AccountLink moves
// through. The raw provider sub-statuses are mapped onto these by the link
// engine; nothing outside this enum is ever persisted.
type LinkStatus string

const (
	LinkStatusInitializing          LinkStatus = "IN_PROGRESS/INITIALIZING"
	LinkStatusVerifyingCredentials  LinkStatus = "IN_PROGRESS/VERIFYING_CREDENTIALS"
	LinkStatusDownloadingData       LinkStatus = "IN_PROGRESS/DOWNLOADING_DATA"
	LinkStatusDownloadingFromSource LinkStatus = "IN_PROGRESS/DOWNLOADING_FROM_SOURCE"

	LinkStatusWaitingForLoginForm LinkStatus = "MFA/WAITING_FOR_LOGIN_FORM"
	LinkStatusPendingUserInput    LinkStatus = "MFA/PENDING_USER_INPUT"

	LinkStatusSuccess LinkStatus = "SUCCESS"

	LinkStatusBadCredentials               LinkStatus = "FAILURE/BAD_CREDENTIALS"
	LinkStatusMFAFailure                   LinkStatus = "FAILURE/MFA_FAILURE"
	LinkStatusExternalServiceFailure       LinkStatus = "FAILURE/EXTERNAL_SERVICE_FAILURE"
	LinkStatusInternalServiceFailure       LinkStatus = "FAILURE/INTERNAL_SERVICE_FAILURE"
	LinkStatusUserInputRequestInBackground LinkStatus = "FAILURE/USER_INPUT_REQUEST_IN_BACKGROUND"
	LinkStatusTimeout                      LinkStatus = "FAILURE/TIMEOUT"
)

// InProgress reports whether the status is a non-MFA in-progress state.
func (s LinkStatus) InProgress() bool {
	return strings.HasPrefix(string(s), "IN_PROGRESS/")
}

// MFA reports whether the status is waiting on the user for a login form.
func (s LinkStatus) MFA() bool {
	return strings.HasPrefix(string(s), "MFA/")
}

// Failure reports whether the status is a terminal failure.
func (s LinkStatus) Failure() bool {
	return strings.HasPrefix(string(s), "FAILURE/")
}

// Terminal reports whether the attempt is over. A terminal link may be
// retried only by starting a new attempt.
func (s LinkStatus) Terminal() bool {
	return s == LinkStatusSuccess || s.Failure()
}
