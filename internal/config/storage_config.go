package config

import "github.com/spf13/viper"

const (
	ArtifactStoreFilesystem = "filesystem"
	ArtifactStoreMinio      = "minio"

	VerificationRecordLog      = "log"
	VerificationRecordPostgres = "postgres"
	VerificationRecordNATS     = "nats"

	artifactStoreVar = "ARTIFACT_STORE"
	dataFolderVar    = "DATA_FOLDER"
	minioEndpointVar = "MINIO_ENDPOINT"
	minioAccessVar   = "MINIO_ACCESS_KEY"
	minioSecretVar   = "MINIO_SECRET_KEY"
	minioBucketVar   = "MINIO_BUCKET"
	minioUseSSLVar   = "MINIO_USE_SSL"

	verificationRecordVar = "VERIFICATION_RECORD"
	databaseURLVar        = "DATABASE_URL"
	natsURLVar            = "NATS_URL"
	natsSubjectVar        = "NATS_SUBJECT"
)

type StorageConfig interface {
	GetArtifactStore() string
	GetDataFolder() string
	GetMinioEndpoint() string
	GetMinioAccessKey() string
	GetMinioSecretKey() string
	GetMinioBucket() string
	GetMinioUseSSL() bool
}

type DownstreamConfig interface {
	GetVerificationRecord() string
	GetDatabaseURL() string
	GetNatsURL() string
	GetNatsSubject() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetArtifactStore() string  { return s.v.GetString(artifactStoreVar) }
func (s Storage) GetDataFolder() string     { return s.v.GetString(dataFolderVar) }
func (s Storage) GetMinioEndpoint() string  { return s.v.GetString(minioEndpointVar) }
func (s Storage) GetMinioAccessKey() string { return s.v.GetString(minioAccessVar) }
func (s Storage) GetMinioSecretKey() string { return s.v.GetString(minioSecretVar) }
func (s Storage) GetMinioBucket() string    { return s.v.GetString(minioBucketVar) }
func (s Storage) GetMinioUseSSL() bool      { return s.v.GetBool(minioUseSSLVar) }

type Downstream struct {
	v *viper.Viper
}

var _ DownstreamConfig = Downstream{}

func (d Downstream) GetVerificationRecord() string { return d.v.GetString(verificationRecordVar) }
func (d Downstream) GetDatabaseURL() string        { return d.v.GetString(databaseURLVar) }
func (d Downstream) GetNatsURL() string            { return d.v.GetString(natsURLVar) }
func (d Downstream) GetNatsSubject() string        { return d.v.GetString(natsSubjectVar) }
