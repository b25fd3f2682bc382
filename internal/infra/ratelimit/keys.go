package ratelimit

// Route names a rate-limited write route.
type Route string

const (
	RouteCasesCreate    Route = "cases:create"
	RouteEventsCreate   Route = "events:create"
	RouteEvidenceIngest Route = "evidence:ingest"
)

// Key scopes a counter to one user on one route. RedisLimiter adds its own
// namespace in front.
func Key(userID string, route Route) string {
	return "user:" + userID + ":route:" + string(route)
}
