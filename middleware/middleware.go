// Package middleware provides HTTP authorization middleware for Arbiter.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/arbiter"
)

// Check names one action on one resource type. The resource ID is read
// from the route parameter configured with WithResourceParam.
type Check struct {
	Action       string
	ResourceType string
}

// SubjectResolver derives the acting subject from a request.
type SubjectResolver func(ctx forge.Context) arbiter.Subject

// Option configures the middleware.
type Option func(*options)

type options struct {
	resolve       SubjectResolver
	resourceParam string
	now           func() time.Time
	proxies       []*net.IPNet
}

// WithSubjectResolver replaces the default subject resolution, which only
// knows the Forge user ID and carries no roles.
func WithSubjectResolver(r SubjectResolver) Option {
	return func(o *options) { o.resolve = r }
}

// WithResourceParam sets the route parameter holding the resource ID.
// Defaults to "id".
func WithResourceParam(name string) Option {
	return func(o *options) { o.resourceParam = name }
}

// WithClock overrides the time injected into the environment.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTrustedProxies lists the CIDRs of reverse proxies whose
// X-Forwarded-For and X-Real-IP headers are believed. Without it the
// client IP is always the connection's remote address. Invalid CIDRs
// panic at construction.
func WithTrustedProxies(cidrs ...string) Option {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("middleware: invalid trusted proxy CIDR " + c + ": " + err.Error())
		}
		nets = append(nets, n)
	}
	return func(o *options) { o.proxies = append(o.proxies, nets...) }
}

func buildOptions(opts []Option) *options {
	o := &options{resolve: resolveSubject, resourceParam: "id", now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Require enforces authorization for a single action on a resource type.
// The environment carries the client "ip" and the request "time".
func Require(eng *arbiter.Engine, action, resourceType string, opts ...Option) forge.Middleware {
	o := buildOptions(opts)
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			ec := o.context(ctx, Check{Action: action, ResourceType: resourceType})
			if err := eng.Enforce(ctx.Context(), ec); err != nil {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if ANY of the checks pass.
func RequireAny(eng *arbiter.Engine, checks []Check, opts ...Option) forge.Middleware {
	o := buildOptions(opts)
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			for _, c := range checks {
				result, err := eng.Evaluate(ctx.Context(), o.context(ctx, c))
				if err == nil && result.Allowed() {
					return next(ctx)
				}
			}
			return denyResponse(ctx)
		}
	}
}

// RequireAll allows the request only if ALL checks pass.
func RequireAll(eng *arbiter.Engine, checks []Check, opts ...Option) forge.Middleware {
	o := buildOptions(opts)
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			for _, c := range checks {
				if err := eng.Enforce(ctx.Context(), o.context(ctx, c)); err != nil {
					return denyResponse(ctx)
				}
			}
			return next(ctx)
		}
	}
}

func (o *options) context(ctx forge.Context, c Check) *arbiter.EvaluationContext {
	return &arbiter.EvaluationContext{
		Subject:     o.resolve(ctx),
		Resource:    arbiter.Resource{Type: c.ResourceType, ID: ctx.Param(o.resourceParam)},
		Action:      c.Action,
		Environment: requestEnvironment(ctx.Request(), o.now(), o.proxies),
	}
}

// resolveSubject extracts the subject from context.
// Priority: Forge user ID (from Authsome) → anonymous.
func resolveSubject(ctx forge.Context) arbiter.Subject {
	if userID := forge.UserIDFromContext(ctx.Context()); userID != "" {
		return arbiter.Subject{Kind: arbiter.SubjectUser, ID: userID}
	}
	return arbiter.Subject{Kind: "unknown", ID: "anonymous"}
}

func requestEnvironment(r *http.Request, now time.Time, proxies []*net.IPNet) *arbiter.Environment {
	attrs := map[string]any{"time": now.UTC()}
	if r != nil {
		if ip := clientIP(r, proxies); ip != "" {
			attrs["ip"] = ip
		}
		attrs["method"] = r.Method
		attrs["path"] = r.URL.Path
	}
	return &arbiter.Environment{Attributes: attrs}
}

// clientIP returns the connection's remote address. When that peer is a
// trusted proxy, the nearest untrusted X-Forwarded-For hop is used
// instead, or X-Real-IP when no X-Forwarded-For header is present.
func clientIP(r *http.Request, proxies []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return ""
	}
	if !trusted(peer, proxies) {
		return peer.String()
	}

	if fwd := r.Header.Values("X-Forwarded-For"); len(fwd) > 0 {
		hops := strings.Split(strings.Join(fwd, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				return peer.String()
			}
			if !trusted(ip, proxies) || i == 0 {
				return ip.String()
			}
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer.String()
}

func trusted(ip net.IP, proxies []*net.IPNet) bool {
	for _, n := range proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func denyResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(http.StatusForbidden)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": "access denied"})
}
