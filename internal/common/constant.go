package common

const (
	// AuthorizationHeaderName carries "Bearer <token>" on inbound requests.
	AuthorizationHeaderName = "Authorization"

	// RefreshTokenHeaderName carries a freshly minted access token on the
	// response of a successful refresh exchange.
	RefreshTokenHeaderName = "Refresh-Token"

	// BearerScheme is the authorization scheme for all tokens.
	BearerScheme = "Bearer"

	// AuthorizationMetadataKey is the gRPC metadata key for the bearer token.
	AuthorizationMetadataKey = "authorization"
)

// Identity headers set by the gateway for upstream services. Values sent by
// clients are always stripped before proxying.
const (
	HeaderAuthUserID   = "X-Auth-User-Id"
	HeaderAuthUsername = "X-Auth-Username"
	HeaderAuthRole     = "X-Auth-Role"
)
