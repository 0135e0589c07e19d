package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MarcReynaud/MissionPay/internal/pkg/session"
	"github.com/MarcReynaud/MissionPay/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into an explicit per-request
// user context. Handlers read from the context only; there is no ambient
// process-wide session state.
func UserContextMiddleware(c *fiber.Ctx) error {
	store := session.GetSessionStore()
	if store == nil {
		usercontext.Set(c, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	sess, err := store.Get(c)
	if err != nil {
		usercontext.Set(c, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	profileID := sess.Get(session.KeyProfileID)
	if profileID == nil {
		usercontext.Set(c, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	id, ok := profileID.(uint)
	if !ok || id == 0 {
		usercontext.Set(c, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	isAdmin, _ := sess.Get(session.KeyIsAdmin).(bool)
	usercontext.Set(c, usercontext.UserContext{
		ProfileID:  id,
		Username:   session.GetSessionValue(c, session.KeyUsername),
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
	})

	return c.Next()
}
