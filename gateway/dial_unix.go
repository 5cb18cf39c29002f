//go:build !windows

package gateway

import (
	"strings"

	"google.golang.org/grpc"
)

// dialTarget нормализует адрес gateway
// unix:// сокеты gRPC резолвит нативно; npipe доступен только на Windows
func dialTarget(addr string) (string, []grpc.DialOption) {
	if strings.HasPrefix(addr, "npipe:") {
		// Подключение упадёт с понятной ошибкой резолвера
		return "passthrough:///" + addr, nil
	}
	return addr, nil
}
