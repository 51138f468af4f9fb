package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	sessionTTLVar       = "SESSION_TTL"
	sweepIntervalVar    = "SWEEP_INTERVAL"
	sweepGraceVar       = "SWEEP_GRACE"
	tokenBytesVar       = "TOKEN_BYTES"
	maxUploadBytesVar   = "MAX_UPLOAD_BYTES"
	finalizeMaxTriesVar = "FINALIZE_MAX_TRIES"
	sessionShardsVar    = "SESSION_SHARDS"
	maxLiveSessionsVar  = "MAX_LIVE_SESSIONS"
	qrSizeVar           = "QR_SIZE"

	minTokenBytes = 16 // 128 bits
)

type HandoffConfig interface {
	GetSessionTTL() time.Duration
	GetSweepInterval() time.Duration
	GetSweepGrace() time.Duration
	GetTokenBytes() int
	GetMaxUploadBytes() int64
	GetFinalizeMaxTries() uint
	GetSessionShards() int
	GetMaxLiveSessions() int
	GetQRSize() int
}

type Handoff struct {
	v *viper.Viper
}

var _ HandoffConfig = Handoff{}

func (h Handoff) GetSessionTTL() time.Duration {
	return h.v.GetDuration(sessionTTLVar)
}

func (h Handoff) GetSweepInterval() time.Duration {
	d := h.v.GetDuration(sweepIntervalVar)
	if d <= 0 {
		return time.Minute
	}
	return d
}

// GetSweepGrace is how long an expired or completed session stays readable by
// its owner before the sweep removes it.
func (h Handoff) GetSweepGrace() time.Duration {
	d := h.v.GetDuration(sweepGraceVar)
	if d < 0 {
		return 0
	}
	return d
}

func (h Handoff) GetTokenBytes() int {
	return h.v.GetInt(tokenBytesVar)
}

func (h Handoff) GetMaxUploadBytes() int64 {
	return h.v.GetInt64(maxUploadBytesVar)
}

func (h Handoff) GetFinalizeMaxTries() uint {
	n := h.v.GetUint(finalizeMaxTriesVar)
	if n == 0 {
		return 1
	}
	return n
}

func (h Handoff) GetSessionShards() int {
	return h.v.GetInt(sessionShardsVar)
}

func (h Handoff) GetMaxLiveSessions() int {
	return h.v.GetInt(maxLiveSessionsVar)
}

func (h Handoff) GetQRSize() int {
	return h.v.GetInt(qrSizeVar)
}
