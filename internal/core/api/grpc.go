package api

import (
	"context"
	"encoding/json"

	"github.com/solatis/oasconform/internal/types"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "oasconform.v1.ConformanceAPI"

// Method names. Requests and responses are google.protobuf.Struct messages
// whose fields follow the JSON names of the request and record types.
const (
	MethodAddPayload     = "AddPayload"
	MethodGetPayload     = "GetPayload"
	MethodListPayloads   = "ListPayloads"
	MethodDeletePayload  = "DeletePayload"
	MethodDeletePayloads = "DeletePayloads"
	MethodAddReports     = "AddReports"
	MethodGetReport      = "GetReport"
	MethodListReports    = "ListReports"
	MethodDeleteReport   = "DeleteReport"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ConformanceServer is the server API for ConformanceAPI.
type ConformanceServer interface {
	AddPayload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPayload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPayloads(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeletePayload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeletePayloads(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddReports(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListReports(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(ConformanceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call structCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConformanceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ConformanceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes ConformanceAPI for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConformanceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodAddPayload, ConformanceServer.AddPayload),
		unaryMethod(MethodGetPayload, ConformanceServer.GetPayload),
		unaryMethod(MethodListPayloads, ConformanceServer.ListPayloads),
		unaryMethod(MethodDeletePayload, ConformanceServer.DeletePayload),
		unaryMethod(MethodDeletePayloads, ConformanceServer.DeletePayloads),
		unaryMethod(MethodAddReports, ConformanceServer.AddReports),
		unaryMethod(MethodGetReport, ConformanceServer.GetReport),
		unaryMethod(MethodListReports, ConformanceServer.ListReports),
		unaryMethod(MethodDeleteReport, ConformanceServer.DeleteReport),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oasconform/v1/conformance.proto",
}

// RegisterConformanceServer registers srv on s.
func RegisterConformanceServer(s grpc.ServiceRegistrar, srv ConformanceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Handler adapts Service to ConformanceServer.
type Handler struct {
	svc *Service
}

// NewHandler wraps svc for gRPC registration.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

var _ ConformanceServer = (*Handler)(nil)

type idRequest struct {
	ID string `json:"id"`
}

type addPayloadRequest struct {
	AddPayloadRequest
	Sync bool `json:"sync"`
}

type deletePayloadsRequest struct {
	Tags []string `json:"tags"`
	Date string   `json:"date"`
}

// AddPayload handles MethodAddPayload.
func (h *Handler) AddPayload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req addPayloadRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	res, err := h.svc.AddPayload(ctx, req.AddPayloadRequest, req.Sync)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(res)
}

// GetPayload handles MethodGetPayload.
func (h *Handler) GetPayload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	rec, err := h.svc.GetPayload(ctx, types.PayloadID(req.ID))
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(rec)
}

// ListPayloads handles MethodListPayloads.
func (h *Handler) ListPayloads(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListPayloadsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	records, err := h.svc.ListPayloads(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(map[string]any{"payloads": records})
}

// DeletePayload handles MethodDeletePayload.
func (h *Handler) DeletePayload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.DeletePayload(ctx, types.PayloadID(req.ID)); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

// DeletePayloads handles MethodDeletePayloads.
func (h *Handler) DeletePayloads(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req deletePayloadsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	n, err := h.svc.DeletePayloads(ctx, req.Tags, req.Date)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(map[string]any{"deleted": n})
}

// AddReports handles MethodAddReports.
func (h *Handler) AddReports(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AddReportsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	params, err := h.svc.AddReports(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(map[string]any{"reports": params})
}

// GetReport handles MethodGetReport.
func (h *Handler) GetReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	rec, err := h.svc.GetReport(ctx, types.ReportID(req.ID))
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(rec)
}

// ListReports handles MethodListReports.
func (h *Handler) ListReports(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListReportsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	records, err := h.svc.ListReports(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(map[string]any{"reports": records})
}

// DeleteReport handles MethodDeleteReport.
func (h *Handler) DeleteReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.DeleteReport(ctx, types.ReportID(req.ID)); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

// decodeStruct maps a Struct onto a JSON-tagged request type.
func decodeStruct(in *structpb.Struct, dest any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return invalid("malformed request: %v", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return invalid("malformed request: %v", err)
	}
	return nil
}

// encodeStruct maps a JSON-tagged value onto a Struct.
func encodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// Client calls ConformanceAPI over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with a JSON-tagged request and decodes the response
// into out when out is non-nil.
func (c *Client) Call(ctx context.Context, method string, req any, out any, opts ...grpc.CallOption) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, FullMethod(method), in, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := protojson.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
