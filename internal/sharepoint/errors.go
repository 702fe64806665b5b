package sharepoint

import "errors"

var (
	// ErrTokenExpired means the bearer token is no longer valid and the user
	// has to re-authenticate. Never retried.
	ErrTokenExpired = errors.New("access token has expired")
	// ErrAuthFailed is any other 401. Never retried.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrTransientExhausted wraps the last transient failure once the retry
	// budget is spent.
	ErrTransientExhausted = errors.New("request failed after retries")

	ErrListingFailed       = errors.New("failed to list folder contents")
	ErrMetadataFetchFailed = errors.New("failed to get file metadata")
	ErrDownloadURLMissing  = errors.New("download URL not found in file metadata")
	ErrDownloadFailed      = errors.New("failed to download file")
)

// IsAuthError reports whether err requires the user to sign in again
func IsAuthError(err error) bool {
	return errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrAuthFailed)
}
