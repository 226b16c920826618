package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const challengeHeader = "www-authenticate"

func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(strings.ToLower(common.AuthorizationHeaderName)); len(values) > 0 {
			header = values[0]
		}
	}

	ctx = s.filter.Authorize(ctx, header)

	if !s.policy.Permits(ctx, info.FullMethod) {
		s.metrics.RecordAuthz("grpc", metrics.OutcomeRejected)
		// fails outside a real server stream; the status code still goes out
		_ = grpc.SetHeader(ctx, metadata.Pairs(challengeHeader, s.policy.Challenge()))
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	return handler(ctx, req)
}
