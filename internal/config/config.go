package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	HandoffConfig
	SecurityConfig
	StorageConfig
	DownstreamConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetMobileBaseURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Handoff
	Security
	Storage
	Downstream
}

// New loads configuration from an optional .env file and the environment.
// Environment variables win over the file. Invalid combinations are rejected here
// so the server never starts half configured.
func New() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	c := mainConfig{
		EnvVars:    EnvVars{v: v},
		Cors:       Cors{v: v},
		Handoff:    Handoff{v: v},
		Security:   Security{v: v},
		Storage:    Storage{v: v},
		Downstream: Downstream{v: v},
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "8080")
	v.SetDefault(appNameVar, "Verification Handoff")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(mobileBaseURLVar, "http://localhost:3000/verify-mobile")

	v.SetDefault(corsOriginsVar, "*")

	v.SetDefault(sessionTTLVar, "10m")
	v.SetDefault(sweepIntervalVar, "1m")
	v.SetDefault(sweepGraceVar, "5m")
	v.SetDefault(tokenBytesVar, 32)
	v.SetDefault(maxUploadBytesVar, 10<<20)
	v.SetDefault(finalizeMaxTriesVar, 3)
	v.SetDefault(sessionShardsVar, 32)
	v.SetDefault(maxLiveSessionsVar, 10000)
	v.SetDefault(qrSizeVar, 256)

	v.SetDefault(primaryAuthModeVar, PrimaryAuthJWT)
	v.SetDefault(jwtIssuerVar, "")
	v.SetDefault(jwtAudienceVar, "")
	v.SetDefault(mobileRateLimitVar, 5.0)
	v.SetDefault(mobileRateBurstVar, 10)

	v.SetDefault(artifactStoreVar, ArtifactStoreFilesystem)
	v.SetDefault(dataFolderVar, "./data")
	v.SetDefault(minioBucketVar, "verification-artifacts")
	v.SetDefault(minioUseSSLVar, false)

	v.SetDefault(verificationRecordVar, VerificationRecordLog)
	v.SetDefault(natsSubjectVar, "identity.verified")
}

func validate(c mainConfig) error {
	if c.GetSessionTTL() <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.GetTokenBytes() < minTokenBytes {
		return errors.Errorf("config: TOKEN_BYTES must be at least %d", minTokenBytes)
	}
	switch strings.ToLower(c.GetPrimaryAuthMode()) {
	case PrimaryAuthJWT:
		if c.GetJWTSecret() == "" {
			return errors.New("config: JWT_SECRET must be set when PRIMARY_AUTH_MODE=jwt")
		}
	case PrimaryAuthOIDC:
		if c.GetOIDCIssuer() == "" || c.GetOIDCClientID() == "" {
			return errors.New("config: OIDC_ISSUER and OIDC_CLIENT_ID must be set when PRIMARY_AUTH_MODE=oidc")
		}
	default:
		return errors.Errorf("config: unknown PRIMARY_AUTH_MODE %q", c.GetPrimaryAuthMode())
	}
	switch c.GetArtifactStore() {
	case ArtifactStoreFilesystem:
	case ArtifactStoreMinio:
		if c.GetMinioEndpoint() == "" {
			return errors.New("config: MINIO_ENDPOINT must be set when ARTIFACT_STORE=minio")
		}
	default:
		return errors.Errorf("config: unknown ARTIFACT_STORE %q", c.GetArtifactStore())
	}
	switch c.GetVerificationRecord() {
	case VerificationRecordLog:
	case VerificationRecordPostgres:
		if c.GetDatabaseURL() == "" {
			return errors.New("config: DATABASE_URL must be set when VERIFICATION_RECORD=postgres")
		}
	case VerificationRecordNATS:
		if c.GetNatsURL() == "" {
			return errors.New("config: NATS_URL must be set when VERIFICATION_RECORD=nats")
		}
	default:
		return errors.Errorf("config: unknown VERIFICATION_RECORD %q", c.GetVerificationRecord())
	}
	return nil
}
