package constants

import "time"

// Host call deadlines. Every remote call into the host client is raced
// against one of these so a stalled host response cannot stall the pipeline.
const (
	PolicyLoadTimeout    = 800 * time.Millisecond
	IdentityProbeTimeout = 900 * time.Millisecond
	MessageFetchTimeout  = 1200 * time.Millisecond
	NotifyTimeout        = 1200 * time.Millisecond
	PasscodeSendTimeout  = 1500 * time.Millisecond
	ThanksSendTimeout    = 1500 * time.Millisecond
	ClaimTimeout         = 5000 * time.Millisecond
)

// Envelope wire constants from the host message format.
const (
	EnvelopeElementType = 9
	PasscodeRedChannel  = 32
	MinorUnitsPerMajor  = 100
)

const (
	DefaultEnvelopeTitle = "QQ红包"
)

const (
	DefaultCooldownDuration = 5 * time.Minute
)

const (
	CacheKeyPrefixBill = "redgrab:bill:"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

// Conversation type codes used by the host command surface.
const (
	ChatTypeSingle = 1
	ChatTypeGroup  = 2
	ChatTypeNotify = 8
)
