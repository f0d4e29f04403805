package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor создает interceptor для unary gRPC методов
func (m *Metrics) UnaryServerInterceptor(serviceName string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		method := GetMethodName(info.FullMethod)

		resp, err := handler(ctx, req)

		m.RecordGrpcRequest(serviceName, method, grpcStatus(err), time.Since(start))

		return resp, err
	}
}

// StreamServerInterceptor создает interceptor для streaming gRPC методов.
// Health Watch использует стриминг.
func (m *Metrics) StreamServerInterceptor(serviceName string) grpc.StreamServerInterceptor {
	return func(
		srv any,
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		method := GetMethodName(info.FullMethod)

		err := handler(srv, stream)

		m.RecordGrpcRequest(serviceName, method, grpcStatus(err), time.Since(start))

		return err
	}
}

func grpcStatus(err error) string {
	grpcCode := codes.OK
	if err != nil {
		grpcCode = status.Code(err)
	}
	return StatusFromGrpcCode(int(grpcCode))
}
