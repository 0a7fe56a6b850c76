package gateway

import (
	"context"
	"strings"

	"github.com/cuemby/itemstored/internal/metrics"
	"google.golang.org/grpc"
)

// MetricsInterceptor records a ResourceGatewayRequestsTotal count for
// every unary RPC the gateway serves, keyed by method name and result;
// call duration is not recorded. The gateway has no read/write split to police — every
// call here already requires a registered resource's certificate — so
// the per-method wrap is instrumentation only.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		method := methodName(info.FullMethod)

		resp, err := handler(ctx, req)

		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.ResourceGatewayRequestsTotal.WithLabelValues(method, result).Inc()
		return resp, err
	}
}

func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	if len(parts) == 0 {
		return fullMethod
	}
	return parts[len(parts)-1]
}
