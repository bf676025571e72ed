// Package grpcbind adapts unary gRPC requests onto the middleware pipeline.
package grpcbind

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/observability"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
)

// Options configure the interceptor.
type Options struct {
	// ExtractUser resolves the authenticated caller from incoming metadata.
	ExtractUser func(md metadata.MD) *domain.User
	// Logger receives pipeline failures. Defaults to a silent logger.
	Logger observability.Logger
}

// UnaryServerInterceptor runs every unary call through the pipeline before
// the service handler. Rejections become gRPC status errors carrying the
// pipeline's response headers as trailing metadata.
func UnaryServerInterceptor(p *pipeline.Pipeline, opts Options) grpc.UnaryServerInterceptor {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewStdLogger(nil)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		mctx := contextFrom(ctx, info.FullMethod)
		if opts.ExtractUser != nil {
			if md, ok := metadata.FromIncomingContext(ctx); ok {
				mctx.User = opts.ExtractUser(md)
			}
		}

		if err := p.Execute(observability.WithTraceID(ctx, mctx.Request.ID), mctx); err != nil {
			logger.Error("pipeline execution failed", map[string]any{
				"method":     info.FullMethod,
				"request_id": mctx.Request.ID,
				"error":      err.Error(),
			})
			return nil, status.Error(codes.Internal, "admission pipeline failed")
		}

		if mctx.Aborted {
			if mctx.Response != nil && len(mctx.Response.Headers) > 0 {
				trailer := metadata.New(mctx.Response.Headers)
				_ = grpc.SetTrailer(ctx, trailer)
			}
			return nil, rejectionStatus(mctx)
		}
		return handler(ctx, req)
	}
}

// rejectionStatus maps the pipeline's HTTP-shaped rejection to a gRPC code.
func rejectionStatus(mctx *domain.Context) error {
	httpStatus := 403
	if mctx.Response != nil && mctx.Response.StatusCode != 0 {
		httpStatus = mctx.Response.StatusCode
	}
	message := "request rejected"
	if mctx.Response != nil && len(mctx.Response.Body) > 0 {
		message = string(mctx.Response.Body)
	}
	switch httpStatus {
	case 429:
		return status.Error(codes.ResourceExhausted, message)
	case 400:
		return status.Error(codes.InvalidArgument, message)
	case 403:
		return status.Error(codes.PermissionDenied, message)
	default:
		return status.Error(codes.Aborted, message)
	}
}

func contextFrom(ctx context.Context, fullMethod string) *domain.Context {
	headers := make(map[string]string)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for key, values := range md {
			if len(values) > 0 {
				headers[key] = values[0]
			}
		}
	}

	remoteAddr := ""
	if pr, ok := peer.FromContext(ctx); ok && pr.Addr != nil {
		remoteAddr = pr.Addr.String()
	}

	id := headers["x-request-id"]
	if id == "" {
		id = strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	return domain.NewContext(domain.Request{
		ID:         id,
		Method:     "POST",
		URL:        fullMethod,
		Headers:    headers,
		RemoteAddr: remoteAddr,
	})
}
