package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/tessera-io/tessera/internal/model"
)

func TestCodecIsRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)
	assert.Equal(t, CodecName, codec.Name())
}

func TestCodecRoundTrip(t *testing.T) {
	codec := encoding.GetCodec(CodecName)

	platform := "Sentinel-2"
	in := &TaskDispatchRequest{
		Kind: model.TaskSplit,
		Params: model.TaskParams{
			Album:           "glacier",
			Filter:          model.Filter{Platform: &platform, Recurse: true},
			ThreadCount:     4,
			TargetPrecision: 6,
		},
		Propagate: true,
	}

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := new(TaskDispatchRequest)
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, in, out)
}

func TestServiceDescsCoverServerInterfaces(t *testing.T) {
	tests := []struct {
		desc    string
		methods int
		got     int
	}{
		{AlbumService_ServiceDesc.ServiceName, 4, len(AlbumService_ServiceDesc.Methods)},
		{ClusterService_ServiceDesc.ServiceName, 1, len(ClusterService_ServiceDesc.Methods)},
		{DataService_ServiceDesc.ServiceName, 2, len(DataService_ServiceDesc.Methods)},
		{TaskService_ServiceDesc.ServiceName, 4, len(TaskService_ServiceDesc.Methods)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.methods, tt.got, tt.desc)
	}
}
