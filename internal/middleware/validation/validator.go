package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SanitizedQueryKey is the Locals key holding the cleaned chat query.
const SanitizedQueryKey = "sanitized_query"

const DefaultMaxQueryLength = 2000

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

var (
	ErrEmptyQuery   = errors.New("query must not be empty")
	ErrQueryTooLong = errors.New("query exceeds maximum length")
	ErrUnsafeQuery  = errors.New("invalid query content")
)

// ValidateQuery cleans a chat query and applies the same checks as the chat
// middleware. A non-positive maxLength means DefaultMaxQueryLength.
func ValidateQuery(raw string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxQueryLength
	}
	query := sanitizeString(raw)
	switch {
	case query == "":
		return "", ErrEmptyQuery
	case utf8.RuneCountInString(query) > maxLength:
		return "", ErrQueryTooLong
	case xssPattern.MatchString(query):
		return "", ErrUnsafeQuery
	}
	return query, nil
}

type Config struct {
	MaxQueryLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware checks content types on writes and, for chat requests, that the
// body carries a non-empty query of bounded length without markup injection.
// Queries may name SQL keywords freely; only the agent ever builds statements.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultMaxQueryLength
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			if contentType := c.Get(fiber.HeaderContentType); contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "unsupported content type",
				})
			}
		}

		if c.Method() != fiber.MethodPost || !strings.Contains(c.Path(), "/chat") {
			return c.Next()
		}

		var req struct {
			Query *string `json:"query"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON body",
			})
		}
		if req.Query == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "query is required and must be a string",
			})
		}

		query, err := ValidateQuery(*req.Query, cfg.MaxQueryLength)
		if err != nil {
			if errors.Is(err, ErrUnsafeQuery) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("path", c.Path()),
				)
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals(SanitizedQueryKey, query)
		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
