package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// bearerFromMetadata reads the authorization metadata. The "Bearer " prefix
// is optional on gRPC.
func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(common.AuthorizationMetadataKey)
	if len(values) == 0 {
		return ""
	}
	if tok, ok := authn.BearerToken(values[0]); ok {
		return tok
	}
	return values[0]
}

// AuthInterceptor guards every method listed in methods. Unlisted methods
// pass through untouched. On success the principal is stored in the
// context for the handler.
func AuthInterceptor(v authn.Verifier, pol authz.Policy, methods authz.MethodTable, logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		capability, guarded := methods.Lookup(info.FullMethod)
		if !guarded {
			return handler(ctx, req)
		}

		raw := bearerFromMetadata(ctx)
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		res := v.Authenticate(ctx, raw)
		if !res.Authenticated() {
			if res.Expired() {
				return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
			}
			logger.Debug(ctx, "token rejected", "method", info.FullMethod, "error", res.Err)
			return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
		}

		if err := pol.Check(res.Principal, capability); err != nil {
			if errors.Is(err, common.ErrInsufficientAuthority) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(authn.WithPrincipal(ctx, res.Principal), req)
	}
}
