package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	apperrors "github.com/pscheid92/aarelay/internal/platform/errors"
)

const rateLimiterExpiry = 5 * time.Minute

// clientIPExtractor decides where c.RealIP() looks. Forwarding headers are
// only honoured when a trusted proxy sits in front and the hop is private.
func clientIPExtractor(trustProxy bool) echo.IPExtractor {
	if trustProxy {
		return echo.ExtractIPFromXFFHeader()
	}
	return echo.ExtractIPDirect()
}

// newRateLimiter limits requests per client IP as resolved by the server's IP extractor.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			appErr := apperrors.RateLimitedError("rate limit exceeded").WithField("client_ip", identifier)
			logError(c, appErr)
			return c.JSON(appErr.HTTPStatus(), appErr.ToResponse())
		},
	})
}
