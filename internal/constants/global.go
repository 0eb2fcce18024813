package constants

const AppName = "cellar"

// response properties and headers attached to a product stream
const (
	ProtocolRequestIDKey   = "X-Request-ID"
	ProtocolCacheStatusKey = "X-Cache"
	ProtocolDownloadIDKey  = "X-Download-ID"
	ProtocolSourceIDKey    = "X-Source-ID"

	CacheHit  = "HIT"
	CacheMiss = "MISS"
	// CacheBypass means the product was streamed without a cache copy.
	CacheBypass = "BYPASS"

	// QualifierProperty names the request property carrying a derived
	// product name (e.g. "overview").
	QualifierProperty = "qualifier"
)
