// Package remote talks to a recognition/translation/synthesis service over gRPC.
package remote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "relay.pipeline.v1.Pipeline"

const (
	recognizeMethod  = "/" + ServiceName + "/Recognize"
	translateMethod  = "/" + ServiceName + "/Translate"
	synthesizeMethod = "/" + ServiceName + "/Synthesize"
)

// Metadata keys carrying the language pair of a request
const (
	MetadataSourceLanguage = "x-source-language"
	MetadataTargetLanguage = "x-target-language"
)

// PipelineServer is implemented by processes serving the pipeline.
//
// Recognize takes 16 kHz mono PCM16LE and returns the transcript.
// Translate takes and returns text. Synthesize returns 8 kHz mono PCM16LE.
type PipelineServer interface {
	Recognize(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Translate(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Synthesize(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// RegisterPipelineServer registers srv on a gRPC server
func RegisterPipelineServer(s grpc.ServiceRegistrar, srv PipelineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// LanguagesFromContext extracts the language pair on the server side
func LanguagesFromContext(ctx context.Context) (source, target string) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ""
	}
	if v := md.Get(MetadataSourceLanguage); len(v) > 0 {
		source = v[0]
	}
	if v := md.Get(MetadataTargetLanguage); len(v) > 0 {
		target = v[0]
	}
	return source, target
}

// ServiceDesc describes the pipeline service using well-known wrapper messages
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PipelineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recognize", Handler: recognizeHandler},
		{MethodName: "Translate", Handler: translateHandler},
		{MethodName: "Synthesize", Handler: synthesizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay/pipeline/v1/pipeline.proto",
}

func recognizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).Recognize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recognizeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PipelineServer).Recognize(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func translateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).Translate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: translateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PipelineServer).Translate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func synthesizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).Synthesize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: synthesizeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PipelineServer).Synthesize(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}
