package config

import "github.com/spf13/viper"

const (
	PrimaryAuthJWT  = "jwt"
	PrimaryAuthOIDC = "oidc"

	primaryAuthModeVar = "PRIMARY_AUTH_MODE"
	jwtSecretVar       = "JWT_SECRET"
	jwtIssuerVar       = "JWT_ISSUER"
	jwtAudienceVar     = "JWT_AUDIENCE"
	oidcIssuerVar      = "OIDC_ISSUER"
	oidcClientIDVar    = "OIDC_CLIENT_ID"
	mobileRateLimitVar = "MOBILE_RATE_LIMIT"
	mobileRateBurstVar = "MOBILE_RATE_BURST"
)

type SecurityConfig interface {
	GetPrimaryAuthMode() string
	GetJWTSecret() string
	GetJWTIssuer() string
	GetJWTAudience() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetMobileRateLimit() float64
	GetMobileRateBurst() int
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

func (s Security) GetPrimaryAuthMode() string {
	return s.v.GetString(primaryAuthModeVar)
}

func (s Security) GetJWTSecret() string {
	return s.v.GetString(jwtSecretVar)
}

func (s Security) GetJWTIssuer() string {
	return s.v.GetString(jwtIssuerVar)
}

func (s Security) GetJWTAudience() string {
	return s.v.GetString(jwtAudienceVar)
}

func (s Security) GetOIDCIssuer() string {
	return s.v.GetString(oidcIssuerVar)
}

func (s Security) GetOIDCClientID() string {
	return s.v.GetString(oidcClientIDVar)
}

// GetMobileRateLimit is the sustained requests per second allowed per remote
// address on the session-token routes.
func (s Security) GetMobileRateLimit() float64 {
	return s.v.GetFloat64(mobileRateLimitVar)
}

func (s Security) GetMobileRateBurst() int {
	return s.v.GetInt(mobileRateBurstVar)
}
