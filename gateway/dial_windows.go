//go:build windows

package gateway

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
	"google.golang.org/grpc"
)

// dialTarget нормализует адрес gateway
// npipe:<path> подключается через named pipe (go-winio)
func dialTarget(addr string) (string, []grpc.DialOption) {
	if !strings.HasPrefix(addr, "npipe:") {
		return addr, nil
	}

	pipePath := strings.TrimPrefix(addr, "npipe:")
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return winio.DialPipeContext(ctx, pipePath)
	}
	return "passthrough:///" + addr, []grpc.DialOption{grpc.WithContextDialer(dialer)}
}
