package serverutils

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJwtMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	app := fiber.New()
	app.Use(JwtMiddleware)
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{
			name:   "valid token exposes subject",
			header: "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"sub": "user-1", "exp": exp}),
			status: fiber.StatusOK,
			body:   "user-1",
		},
		{
			name:   "missing header",
			header: "",
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "token without expiry",
			header: "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"sub": "user-1"}),
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "token without subject",
			header: "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"exp": exp}),
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"sub": "user-1", "exp": exp}),
			status: fiber.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.body != "" {
				data, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				require.Equal(t, tc.body, string(data))
			}
		})
	}
}
