package linker

import (
	"testing"

	"linka/internal/models"
	"linka/internal/provider"
)

func snapshot(status provider.RefreshStatus, additional string) *provider.ProviderAccount {
	return &provider.ProviderAccount{
		ID: "1001",
		RefreshInfo: provider.RefreshInfo{
			Status:           status,
			AdditionalStatus: additional,
		},
	}
}

func TestDeriveStatus(t *testing.T) {
	withForm := snapshot(provider.RefreshStatusInProgress, provider.AdditionalStatusUserInputRequired)
	withForm.LoginForm = &provider.LoginForm{FormType: "questionAndAnswer"}

	tests := []struct {
		name string
		pa   *provider.ProviderAccount
		mode Mode
		want models.LinkStatus
	}{
		{
			name: "nil snapshot",
			pa:   nil,
			mode: ModeManual,
			want: models.LinkStatusInitializing,
		},
		{
			name: "empty refresh info",
			pa:   &provider.ProviderAccount{ID: "1001"},
			mode: ModeManual,
			want: models.LinkStatusInitializing,
		},
		{
			name: "login in progress",
			pa:   snapshot(provider.RefreshStatusInProgress, provider.AdditionalStatusLoginInProgress),
			mode: ModeManual,
			want: models.LinkStatusVerifyingCredentials,
		},
		{
			name: "user input required without form",
			pa:   snapshot(provider.RefreshStatusInProgress, provider.AdditionalStatusUserInputRequired),
			mode: ModeManual,
			want: models.LinkStatusWaitingForLoginForm,
		},
		{
			name: "user input required with form",
			pa:   withForm,
			mode: ModeManual,
			want: models.LinkStatusPendingUserInput,
		},
		{
			name: "user input required in background",
			pa:   snapshot(provider.RefreshStatusInProgress, provider.AdditionalStatusUserInputRequired),
			mode: ModeAuto,
			want: models.LinkStatusUserInputRequestInBackground,
		},
		{
			name: "in progress with unknown additional status",
			pa:   snapshot(provider.RefreshStatusInProgress, "DATA_RETRIEVAL_IN_PROGRESS"),
			mode: ModeManual,
			want: models.LinkStatusDownloadingData,
		},
		{
			name: "in progress with no additional status",
			pa:   snapshot(provider.RefreshStatusInProgress, ""),
			mode: ModeManual,
			want: models.LinkStatusDownloadingData,
		},
		{
			name: "failed login",
			pa:   snapshot(provider.RefreshStatusFailed, provider.AdditionalStatusLoginFailed),
			mode: ModeManual,
			want: models.LinkStatusBadCredentials,
		},
		{
			name: "failed mfa request timeout",
			pa:   snapshot(provider.RefreshStatusFailed, provider.AdditionalStatusRequestTimeOut),
			mode: ModeManual,
			want: models.LinkStatusMFAFailure,
		},
		{
			name: "failed mfa info not provided",
			pa:   snapshot(provider.RefreshStatusFailed, provider.AdditionalStatusMFAInfoNotProvided),
			mode: ModeManual,
			want: models.LinkStatusMFAFailure,
		},
		{
			name: "failed with unknown additional status",
			pa:   snapshot(provider.RefreshStatusFailed, "SITE_UNAVAILABLE"),
			mode: ModeManual,
			want: models.LinkStatusInternalServiceFailure,
		},
		{
			name: "success",
			pa:   snapshot(provider.RefreshStatusSuccess, ""),
			mode: ModeManual,
			want: models.LinkStatusSuccess,
		},
		{
			name: "partial success counts as success",
			pa:   snapshot(provider.RefreshStatusPartialSuccess, ""),
			mode: ModeManual,
			want: models.LinkStatusSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveStatus(tt.pa, tt.mode)
			if got != tt.want {
				t.Errorf("deriveStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}
