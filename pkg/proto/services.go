package proto

import (
	"context"

	"google.golang.org/grpc"
)

// Full method names, used by interceptors and logging.
const (
	AlbumServiceName   = "tessera.AlbumService"
	ClusterServiceName = "tessera.ClusterService"
	DataServiceName    = "tessera.DataService"
	TaskServiceName    = "tessera.TaskService"
)

// AlbumServiceServer is implemented by the daemon's album handler.
type AlbumServiceServer interface {
	Create(context.Context, *AlbumCreateRequest) (*AlbumCreateResponse, error)
	Open(context.Context, *AlbumOpenRequest) (*AlbumOpenResponse, error)
	Close(context.Context, *AlbumCloseRequest) (*AlbumCloseResponse, error)
	List(context.Context, *AlbumListRequest) (*AlbumListResponse, error)
}

// ClusterServiceServer is implemented by the daemon's cluster handler.
type ClusterServiceServer interface {
	ListNodes(context.Context, *NodeListRequest) (*NodeListResponse, error)
}

// DataServiceServer is implemented by the daemon's data handler.
type DataServiceServer interface {
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
}

// TaskServiceServer is implemented by the daemon's task handler.
type TaskServiceServer interface {
	Dispatch(context.Context, *TaskDispatchRequest) (*TaskDispatchResponse, error)
	List(context.Context, *TaskListRequest) (*TaskListResponse, error)
	Show(context.Context, *TaskShowRequest) (*TaskShowResponse, error)
	Clear(context.Context, *TaskClearRequest) (*TaskClearResponse, error)
}

// RegisterAlbumServiceServer registers the album service on a gRPC server.
func RegisterAlbumServiceServer(s grpc.ServiceRegistrar, srv AlbumServiceServer) {
	s.RegisterService(&AlbumService_ServiceDesc, srv)
}

// RegisterClusterServiceServer registers the cluster service on a gRPC server.
func RegisterClusterServiceServer(s grpc.ServiceRegistrar, srv ClusterServiceServer) {
	s.RegisterService(&ClusterService_ServiceDesc, srv)
}

// RegisterDataServiceServer registers the data service on a gRPC server.
func RegisterDataServiceServer(s grpc.ServiceRegistrar, srv DataServiceServer) {
	s.RegisterService(&DataService_ServiceDesc, srv)
}

// RegisterTaskServiceServer registers the task service on a gRPC server.
func RegisterTaskServiceServer(s grpc.ServiceRegistrar, srv TaskServiceServer) {
	s.RegisterService(&TaskService_ServiceDesc, srv)
}

// unaryHandler adapts a typed method to the grpc.ServiceDesc handler shape.
func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(context.Context, *Req) (*Resp, error),
) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		})
	}
}

// AlbumService_ServiceDesc is the grpc.ServiceDesc for AlbumService.
var AlbumService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AlbumServiceName,
	HandlerType: (*AlbumServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: _AlbumService_Create_Handler},
		{MethodName: "Open", Handler: _AlbumService_Open_Handler},
		{MethodName: "Close", Handler: _AlbumService_Close_Handler},
		{MethodName: "List", Handler: _AlbumService_List_Handler},
	},
	Streams: []grpc.StreamDesc{},
}

func _AlbumService_Create_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.AlbumService/Create", srv.(AlbumServiceServer).Create)(srv, ctx, dec, interceptor)
}

func _AlbumService_Open_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.AlbumService/Open", srv.(AlbumServiceServer).Open)(srv, ctx, dec, interceptor)
}

func _AlbumService_Close_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.AlbumService/Close", srv.(AlbumServiceServer).Close)(srv, ctx, dec, interceptor)
}

func _AlbumService_List_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.AlbumService/List", srv.(AlbumServiceServer).List)(srv, ctx, dec, interceptor)
}

// ClusterService_ServiceDesc is the grpc.ServiceDesc for ClusterService.
var ClusterService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ClusterServiceName,
	HandlerType: (*ClusterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListNodes", Handler: _ClusterService_ListNodes_Handler},
	},
	Streams: []grpc.StreamDesc{},
}

func _ClusterService_ListNodes_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.ClusterService/ListNodes", srv.(ClusterServiceServer).ListNodes)(srv, ctx, dec, interceptor)
}

// DataService_ServiceDesc is the grpc.ServiceDesc for DataService.
var DataService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: DataServiceName,
	HandlerType: (*DataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Search", Handler: _DataService_Search_Handler},
		{MethodName: "List", Handler: _DataService_List_Handler},
	},
	Streams: []grpc.StreamDesc{},
}

func _DataService_Search_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.DataService/Search", srv.(DataServiceServer).Search)(srv, ctx, dec, interceptor)
}

func _DataService_List_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.DataService/List", srv.(DataServiceServer).List)(srv, ctx, dec, interceptor)
}

// TaskService_ServiceDesc is the grpc.ServiceDesc for TaskService.
var TaskService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: TaskServiceName,
	HandlerType: (*TaskServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: _TaskService_Dispatch_Handler},
		{MethodName: "List", Handler: _TaskService_List_Handler},
		{MethodName: "Show", Handler: _TaskService_Show_Handler},
		{MethodName: "Clear", Handler: _TaskService_Clear_Handler},
	},
	Streams: []grpc.StreamDesc{},
}

func _TaskService_Dispatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.TaskService/Dispatch", srv.(TaskServiceServer).Dispatch)(srv, ctx, dec, interceptor)
}

func _TaskService_List_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.TaskService/List", srv.(TaskServiceServer).List)(srv, ctx, dec, interceptor)
}

func _TaskService_Show_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.TaskService/Show", srv.(TaskServiceServer).Show)(srv, ctx, dec, interceptor)
}

func _TaskService_Clear_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler("/tessera.TaskService/Clear", srv.(TaskServiceServer).Clear)(srv, ctx, dec, interceptor)
}

// invoke performs a unary call under the JSON codec.
func invoke[Req any, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AlbumServiceClient is the client side of AlbumService.
type AlbumServiceClient interface {
	Create(ctx context.Context, in *AlbumCreateRequest, opts ...grpc.CallOption) (*AlbumCreateResponse, error)
	Open(ctx context.Context, in *AlbumOpenRequest, opts ...grpc.CallOption) (*AlbumOpenResponse, error)
	Close(ctx context.Context, in *AlbumCloseRequest, opts ...grpc.CallOption) (*AlbumCloseResponse, error)
	List(ctx context.Context, in *AlbumListRequest, opts ...grpc.CallOption) (*AlbumListResponse, error)
}

type albumServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAlbumServiceClient wraps a connection as an AlbumServiceClient.
func NewAlbumServiceClient(cc grpc.ClientConnInterface) AlbumServiceClient {
	return &albumServiceClient{cc: cc}
}

func (c *albumServiceClient) Create(ctx context.Context, in *AlbumCreateRequest, opts ...grpc.CallOption) (*AlbumCreateResponse, error) {
	return invoke[AlbumCreateRequest, AlbumCreateResponse](ctx, c.cc, "/tessera.AlbumService/Create", in, opts)
}

func (c *albumServiceClient) Open(ctx context.Context, in *AlbumOpenRequest, opts ...grpc.CallOption) (*AlbumOpenResponse, error) {
	return invoke[AlbumOpenRequest, AlbumOpenResponse](ctx, c.cc, "/tessera.AlbumService/Open", in, opts)
}

func (c *albumServiceClient) Close(ctx context.Context, in *AlbumCloseRequest, opts ...grpc.CallOption) (*AlbumCloseResponse, error) {
	return invoke[AlbumCloseRequest, AlbumCloseResponse](ctx, c.cc, "/tessera.AlbumService/Close", in, opts)
}

func (c *albumServiceClient) List(ctx context.Context, in *AlbumListRequest, opts ...grpc.CallOption) (*AlbumListResponse, error) {
	return invoke[AlbumListRequest, AlbumListResponse](ctx, c.cc, "/tessera.AlbumService/List", in, opts)
}

// ClusterServiceClient is the client side of ClusterService.
type ClusterServiceClient interface {
	ListNodes(ctx context.Context, in *NodeListRequest, opts ...grpc.CallOption) (*NodeListResponse, error)
}

type clusterServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewClusterServiceClient wraps a connection as a ClusterServiceClient.
func NewClusterServiceClient(cc grpc.ClientConnInterface) ClusterServiceClient {
	return &clusterServiceClient{cc: cc}
}

func (c *clusterServiceClient) ListNodes(ctx context.Context, in *NodeListRequest, opts ...grpc.CallOption) (*NodeListResponse, error) {
	return invoke[NodeListRequest, NodeListResponse](ctx, c.cc, "/tessera.ClusterService/ListNodes", in, opts)
}

// DataServiceClient is the client side of DataService.
type DataServiceClient interface {
	Search(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*SearchResponse, error)
	List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error)
}

type dataServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDataServiceClient wraps a connection as a DataServiceClient.
func NewDataServiceClient(cc grpc.ClientConnInterface) DataServiceClient {
	return &dataServiceClient{cc: cc}
}

func (c *dataServiceClient) Search(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*SearchResponse, error) {
	return invoke[SearchRequest, SearchResponse](ctx, c.cc, "/tessera.DataService/Search", in, opts)
}

func (c *dataServiceClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	return invoke[ListRequest, ListResponse](ctx, c.cc, "/tessera.DataService/List", in, opts)
}

// TaskServiceClient is the client side of TaskService.
type TaskServiceClient interface {
	Dispatch(ctx context.Context, in *TaskDispatchRequest, opts ...grpc.CallOption) (*TaskDispatchResponse, error)
	List(ctx context.Context, in *TaskListRequest, opts ...grpc.CallOption) (*TaskListResponse, error)
	Show(ctx context.Context, in *TaskShowRequest, opts ...grpc.CallOption) (*TaskShowResponse, error)
	Clear(ctx context.Context, in *TaskClearRequest, opts ...grpc.CallOption) (*TaskClearResponse, error)
}

type taskServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTaskServiceClient wraps a connection as a TaskServiceClient.
func NewTaskServiceClient(cc grpc.ClientConnInterface) TaskServiceClient {
	return &taskServiceClient{cc: cc}
}

func (c *taskServiceClient) Dispatch(ctx context.Context, in *TaskDispatchRequest, opts ...grpc.CallOption) (*TaskDispatchResponse, error) {
	return invoke[TaskDispatchRequest, TaskDispatchResponse](ctx, c.cc, "/tessera.TaskService/Dispatch", in, opts)
}

func (c *taskServiceClient) List(ctx context.Context, in *TaskListRequest, opts ...grpc.CallOption) (*TaskListResponse, error) {
	return invoke[TaskListRequest, TaskListResponse](ctx, c.cc, "/tessera.TaskService/List", in, opts)
}

func (c *taskServiceClient) Show(ctx context.Context, in *TaskShowRequest, opts ...grpc.CallOption) (*TaskShowResponse, error) {
	return invoke[TaskShowRequest, TaskShowResponse](ctx, c.cc, "/tessera.TaskService/Show", in, opts)
}

func (c *taskServiceClient) Clear(ctx context.Context, in *TaskClearRequest, opts ...grpc.CallOption) (*TaskClearResponse, error) {
	return invoke[TaskClearRequest, TaskClearResponse](ctx, c.cc, "/tessera.TaskService/Clear", in, opts)
}
