package rate_limit

// RateLimit defines the request per minute (RPM) budget for a single origin host
type RateLimit struct {
	RPM int // Requests allowed per minute window
}

// DefaultLimit is applied to hosts with no explicit budget
var DefaultLimit = RateLimit{
	RPM: 600 * .9, // 600 RPM with 10% buffer to stay under the limit
}
