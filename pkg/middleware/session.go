package middleware

import (
	"arc/auth-api/config"
	"arc/auth-api/pkg/security"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "sessionClaims"

// Mode decides how a protected path answers an unauthenticated request
type Mode int

const (
	// Reject answers 401 with a JSON body
	Reject Mode = iota
	// Redirect answers 302 to the login page
	Redirect
)

type Rule struct {
	Prefix string
	Mode   Mode
}

// SessionGuard checks the session token on every request whose path falls
// under a protected prefix. It does no database work.
type SessionGuard struct {
	tokens    *security.SessionTokens
	cookie    string
	loginPath string
	rules     []Rule
}

// RulesFrom builds guard rules from the session config. Pages redirect, API
// prefixes reject.
func RulesFrom(c config.Session) []Rule {
	rules := make([]Rule, 0, len(c.ProtectedPages)+len(c.ProtectedAPI))

	for _, p := range c.ProtectedPages {
		rules = append(rules, Rule{Prefix: p, Mode: Redirect})
	}

	for _, p := range c.ProtectedAPI {
		rules = append(rules, Rule{Prefix: p, Mode: Reject})
	}

	return rules
}

func NewSessionGuard(tokens *security.SessionTokens, cookieName, loginPath string, rules []Rule) *SessionGuard {
	rs := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Prefix = strings.TrimRight(r.Prefix, "/")
		if r.Prefix == "" {
			r.Prefix = "/"
		}
		rs = append(rs, r)
	}

	// longest prefix first so the first match wins
	sort.SliceStable(rs, func(i, j int) bool {
		return len(rs[i].Prefix) > len(rs[j].Prefix)
	})

	return &SessionGuard{
		tokens:    tokens,
		cookie:    cookieName,
		loginPath: loginPath,
		rules:     rs,
	}
}

// Match returns the rule protecting path, if any
func (g *SessionGuard) Match(path string) (Rule, bool) {
	for _, r := range g.rules {
		if underPrefix(path, r.Prefix) {
			return r, true
		}
	}

	return Rule{}, false
}

func underPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}

	if !strings.HasPrefix(path, prefix) {
		return false
	}

	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Handler is installed once on the engine
func (g *SessionGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, ok := g.Match(c.Request.URL.Path)
		if !ok {
			c.Next()
			return
		}

		token := g.credential(c)
		if token == "" {
			g.deny(c, rule)
			return
		}

		claims, err := g.tokens.Verify(token)
		if err != nil {
			zap.L().Warn("Session verification failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("requestID", RequestID(c)))

			g.deny(c, rule)
			return
		}

		c.Set(claimsKey, claims)
		c.Set("userID", claims.UserID)
		c.Next()
	}
}

// credential reads the session cookie, then a bearer Authorization header
func (g *SessionGuard) credential(c *gin.Context) string {
	if v, err := c.Cookie(g.cookie); err == nil && v != "" {
		return v
	}

	h := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

func (g *SessionGuard) deny(c *gin.Context, r Rule) {
	if r.Mode == Redirect {
		c.Redirect(http.StatusFound, g.loginPath)
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":     "Not authenticated",
		"requestID": RequestID(c),
	})
}

// Claims returns the session of the current request. It is only set on
// paths protected by a SessionGuard.
func Claims(c *gin.Context) (security.SessionClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return security.SessionClaims{}, false
	}

	claims, ok := v.(security.SessionClaims)
	return claims, ok
}
