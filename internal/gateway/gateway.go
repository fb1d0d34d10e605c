// Package gateway is the edge in front of resource services. It verifies
// bearer tokens on a bounded worker pool, forwards the identity as headers
// and proxies by path prefix.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const principalLocal = "principal"

// identityHeaderPrefix covers every header the gateway asserts to upstreams.
const identityHeaderPrefix = "X-Auth-"

// AsyncAuthenticator is satisfied by *authn.AsyncVerifier.
type AsyncAuthenticator interface {
	AuthenticateAsync(ctx context.Context, rawToken string) <-chan authn.Result
}

type Options struct {
	Routes        map[string]string
	RequireAuth   []string
	VerifyTimeout time.Duration
	ProxyTimeout  time.Duration
}

type upstream struct {
	prefix string
	target string
}

type Gateway struct {
	app           *fiber.App
	verifier      AsyncAuthenticator
	routes        []upstream
	requireAuth   []string
	verifyTimeout time.Duration
	proxyTimeout  time.Duration
	logger        logging.Logger
}

func New(opts Options, v AsyncAuthenticator, logger logging.Logger) *Gateway {
	g := &Gateway{
		verifier:      v,
		requireAuth:   opts.RequireAuth,
		verifyTimeout: opts.VerifyTimeout,
		proxyTimeout:  opts.ProxyTimeout,
		logger:        logger.With("module", "gateway"),
	}
	if g.verifyTimeout <= 0 {
		g.verifyTimeout = 2 * time.Second
	}

	for prefix, target := range opts.Routes {
		g.routes = append(g.routes, upstream{prefix: prefix, target: strings.TrimSuffix(target, "/")})
	}
	// longest prefix first
	sort.Slice(g.routes, func(i, j int) bool {
		if len(g.routes[i].prefix) != len(g.routes[j].prefix) {
			return len(g.routes[i].prefix) > len(g.routes[j].prefix)
		}
		return g.routes[i].prefix < g.routes[j].prefix
	})

	g.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          g.handleError,
	})
	g.app.Use(requestid.New())
	g.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	g.app.Use(g.authenticate)
	g.app.All("/*", g.forward)

	return g
}

// App exposes the fiber application, mainly for tests.
func (g *Gateway) App() *fiber.App { return g.app }

// Run listens on addr until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	errChan := make(chan error, 1)
	go func() {
		g.logger.Info(ctx, "gateway listening", "addr", addr)
		errChan <- g.app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		g.logger.Info(ctx, "gateway stopping")
		return g.app.ShutdownWithTimeout(30 * time.Second)
	case err := <-errChan:
		return err
	}
}

func stripIdentityHeaders(c *fiber.Ctx) {
	var drop []string
	c.Request().Header.VisitAll(func(k, _ []byte) {
		if len(k) >= len(identityHeaderPrefix) && strings.EqualFold(string(k[:len(identityHeaderPrefix)]), identityHeaderPrefix) {
			drop = append(drop, string(k))
		}
	})
	for _, k := range drop {
		c.Request().Header.Del(k)
	}
}

// authenticate never trusts client-supplied identity headers. A valid token
// replaces them with the verified identity.
func (g *Gateway) authenticate(c *fiber.Ctx) error {
	stripIdentityHeaders(c)

	raw, _ := authn.BearerToken(c.Get(common.AuthorizationHeaderName))
	res := authn.Result{Err: authn.ErrNoToken}

	if raw != "" {
		ctx, cancel := context.WithTimeout(c.UserContext(), g.verifyTimeout)
		defer cancel()

		select {
		case res = <-g.verifier.AuthenticateAsync(ctx, raw):
		case <-ctx.Done():
			res = authn.Result{Err: ctx.Err()}
		}
	}

	if errors.Is(res.Err, context.DeadlineExceeded) {
		g.logger.Warn(c.UserContext(), "token verification timed out", "path", c.Path())
		if g.requiresAuth(c.Path()) {
			return writeError(c, http.StatusServiceUnavailable, "verification_unavailable", "token verification timed out")
		}
	}

	if !res.Authenticated() {
		if g.requiresAuth(c.Path()) {
			return g.deny(c, res)
		}
		return c.Next()
	}

	p := res.Principal
	c.Request().Header.Set(common.HeaderAuthUserID, strconv.FormatInt(p.UserID, 10))
	c.Request().Header.Set(common.HeaderAuthUsername, p.Username)
	c.Request().Header.Set(common.HeaderAuthRole, p.Role)
	c.Locals(principalLocal, p)

	return c.Next()
}

func (g *Gateway) deny(c *fiber.Ctx, res authn.Result) error {
	c.Set(fiber.HeaderWWWAuthenticate, authz.Challenge(res.Expired()))
	msg := "authentication required"
	switch {
	case res.Expired():
		msg = common.ErrTokenExpired.Error()
	case errors.Is(res.Err, common.ErrInvalidToken):
		msg = common.ErrInvalidToken.Error()
	}
	return writeError(c, http.StatusUnauthorized, "unauthorized", msg)
}

func (g *Gateway) forward(c *fiber.Ctx) error {
	u, ok := g.match(c.Path())
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found", "no upstream for path")
	}

	target := u.target + c.OriginalURL()
	var err error
	if g.proxyTimeout > 0 {
		err = proxy.DoTimeout(c, target, g.proxyTimeout)
	} else {
		err = proxy.Do(c, target)
	}
	if err != nil {
		g.logger.Error(c.UserContext(), "upstream failed", "target", u.target, "error", err)
		return writeError(c, http.StatusBadGateway, "bad_gateway", "upstream unavailable")
	}

	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}

func (g *Gateway) match(path string) (upstream, bool) {
	for _, u := range g.routes {
		if hasPathPrefix(path, u.prefix) {
			return u, true
		}
	}
	return upstream{}, false
}

func (g *Gateway) requiresAuth(path string) bool {
	for _, p := range g.requireAuth {
		if hasPathPrefix(path, p) {
			return true
		}
	}
	return false
}

// hasPathPrefix matches whole path segments: "/shop" matches "/shop" and
// "/shop/items" but not "/shopping".
func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (g *Gateway) handleError(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	g.logger.Error(c.UserContext(), "request failed", "path", c.Path(), "error", err)
	return writeError(c, code, "gateway_error", http.StatusText(code))
}

func writeError(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(authz.ErrorBody{Error: code, Message: msg})
}
