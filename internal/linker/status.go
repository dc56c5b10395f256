package linker

import (
	"linka/internal/models"
	"linka/internal/provider"
)

// Mode distinguishes a user-driven linking attempt from a scheduled
// background refresh. Background attempts cannot collect MFA input.
type Mode int

const (
	ModeManual Mode = iota
	ModeAuto
)

func (m Mode) String() string {
	if m == ModeAuto {
		return "auto"
	}
	return "manual"
}

// deriveStatus maps the provider's raw refresh sub-status onto the
// semantic link status. Rules are evaluated in order; the first match wins.
func deriveStatus(pa *provider.ProviderAccount, mode Mode) models.LinkStatus {
	if pa == nil || pa.RefreshInfo.Status == "" {
		return models.LinkStatusInitializing
	}

	ri := pa.RefreshInfo
	switch ri.Status {
	case provider.RefreshStatusInProgress:
		switch ri.AdditionalStatus {
		case provider.AdditionalStatusLoginInProgress:
			return models.LinkStatusVerifyingCredentials
		case provider.AdditionalStatusUserInputRequired:
			if mode == ModeAuto {
				return models.LinkStatusUserInputRequestInBackground
			}
			if pa.LoginForm == nil {
				return models.LinkStatusWaitingForLoginForm
			}
			return models.LinkStatusPendingUserInput
		default:
			return models.LinkStatusDownloadingData
		}

	case provider.RefreshStatusFailed:
		switch {
		case isMFATimeout(ri.AdditionalStatus):
			return models.LinkStatusMFAFailure
		case ri.AdditionalStatus == provider.AdditionalStatusLoginFailed:
			return models.LinkStatusBadCredentials
		default:
			return models.LinkStatusInternalServiceFailure
		}

	default:
		// SUCCESS, PARTIAL_SUCCESS and anything the provider adds later.
		return models.LinkStatusSuccess
	}
}

// isMFATimeout matches the provider sub-statuses reported when an MFA form
// was requested but never answered in time.
func isMFATimeout(additionalStatus string) bool {
	switch additionalStatus {
	case provider.AdditionalStatusRequestTimeOut, provider.AdditionalStatusMFAInfoNotProvided:
		return true
	}
	return false
}
