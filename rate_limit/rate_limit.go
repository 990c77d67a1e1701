package rate_limit

// RateLimit defines token per minute (TPM) and request per minute (RPM) limits
type RateLimit struct {
	RPM int `yaml:"rpm"` // Requests per minute
	TPM int `yaml:"tpm"` // Tokens per minute
}

// ChatAPIRateLimit is the default per-client budget of the mock chat API. It is deliberately
// small so the widget's rate limit handling can be exercised by hand.
var ChatAPIRateLimit = RateLimit{
	RPM: 5,
	TPM: 20 * 1000,
}
