package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rzbill/courier/internal/broker"
	"github.com/rzbill/courier/internal/brokerapi"
	"github.com/rzbill/courier/internal/transport"
)

// Backend is the queue store served over gRPC. *broker.Broker implements it.
type Backend interface {
	transport.Transport
	transport.Inspector
	EnsureQueue(ctx context.Context, name string) (broker.QueueMeta, error)
}

// brokerServer is the HandlerType of the service descriptor.
type brokerServer interface {
	queue(name string) (transport.Queue, error)
}

type brokerSvc struct {
	backend Backend
}

func (s *brokerSvc) queue(name string) (transport.Queue, error) { return s.backend.Queue(name) }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: brokerapi.ServiceName,
	HandlerType: (*brokerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(brokerapi.MethodEnsureQueue, (*brokerSvc).ensureQueue),
		unary(brokerapi.MethodEnqueue, (*brokerSvc).enqueue),
		unary(brokerapi.MethodLease, (*brokerSvc).lease),
		unary(brokerapi.MethodDelete, (*brokerSvc).delete),
		unary(brokerapi.MethodStats, (*brokerSvc).stats),
		unary(brokerapi.MethodPeek, (*brokerSvc).peek),
	},
	Metadata: "courier/broker/v1/broker.proto",
}

// unary adapts a typed method to a gRPC handler over structpb.Struct.
func unary[Req, Resp any](method string, fn func(*brokerSvc, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, raw any) (any, error) {
				req := new(Req)
				if err := brokerapi.FromStruct(raw.(*structpb.Struct), req); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				resp, err := fn(srv.(*brokerSvc), ctx, req)
				if err != nil {
					return nil, brokerapi.ToStatus(err)
				}
				out, err := brokerapi.ToStruct(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: brokerapi.FullMethod(method)}
			return interceptor(ctx, in, info, call)
		},
	}
}

func (s *brokerSvc) ensureQueue(ctx context.Context, req *brokerapi.EnsureQueueRequest) (*brokerapi.EnsureQueueResponse, error) {
	m, err := s.backend.EnsureQueue(ctx, req.Queue)
	if err != nil {
		return nil, err
	}
	return &brokerapi.EnsureQueueResponse{Queue: m.Name, CreatedAtMs: m.CreatedAtMs}, nil
}

func (s *brokerSvc) enqueue(ctx context.Context, req *brokerapi.EnqueueRequest) (*brokerapi.EnqueueResponse, error) {
	q, err := s.queue(req.Queue)
	if err != nil {
		return nil, err
	}
	if err := q.Enqueue(ctx, req.Body); err != nil {
		return nil, err
	}
	return &brokerapi.EnqueueResponse{}, nil
}

func (s *brokerSvc) lease(ctx context.Context, req *brokerapi.LeaseRequest) (*brokerapi.LeaseResponse, error) {
	if req.Max <= 0 || req.LeaseMs <= 0 {
		return nil, status.Error(codes.InvalidArgument, "max and leaseMs must be positive")
	}
	q, err := s.queue(req.Queue)
	if err != nil {
		return nil, err
	}
	msgs, err := q.LeaseBatch(ctx, req.Max, time.Duration(req.LeaseMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	out := &brokerapi.LeaseResponse{Messages: make([]brokerapi.LeasedMessage, len(msgs))}
	for i, m := range msgs {
		out.Messages[i] = brokerapi.LeasedMessage{Body: m.Body, DequeueCount: m.DequeueCount, Handle: string(m.Handle)}
	}
	return out, nil
}

func (s *brokerSvc) delete(ctx context.Context, req *brokerapi.DeleteRequest) (*brokerapi.DeleteResponse, error) {
	q, err := s.queue(req.Queue)
	if err != nil {
		return nil, err
	}
	if err := q.Delete(ctx, transport.Handle(req.Handle)); err != nil {
		return nil, err
	}
	return &brokerapi.DeleteResponse{}, nil
}

func (s *brokerSvc) stats(ctx context.Context, req *brokerapi.StatsRequest) (*brokerapi.StatsResponse, error) {
	st, err := s.backend.Stats(ctx, req.Queue)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *brokerSvc) peek(ctx context.Context, req *brokerapi.PeekRequest) (*brokerapi.PeekResponse, error) {
	msgs, err := s.backend.Peek(ctx, req.Queue, transport.PeekOptions{Limit: req.Limit, Filter: req.Filter})
	if err != nil {
		return nil, err
	}
	return &brokerapi.PeekResponse{Messages: msgs}, nil
}
