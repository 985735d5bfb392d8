package oauth2

// ResponseModeType denotes how the authorization response parameters are returned to the client.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	// Example: http://127.0.0.1:8089/oauth/callback?accessToken=...&state=xyz
	QueryResponseMode ResponseModeType = "query"
)

// Callback query parameters sent by the backend once the provider login completes.
const (
	ParamAccessToken      = "accessToken"
	ParamState            = "state"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
)

// callbackResult is what the loopback listener hands back to the waiting login.
type callbackResult struct {
	accessToken string
	err         error
}
