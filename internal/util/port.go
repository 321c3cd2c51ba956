package util

import (
	"fmt"
	"net"
	"strconv"
)

// FindAvailablePort 从 startPort 起依次尝试监听，返回第一个可用端口
func FindAvailablePort(startPort, attempts int) (int, error) {
	for port := startPort; port < startPort+attempts; port++ {
		ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
		if err != nil {
			continue
		}
		_ = ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in %d..%d", startPort, startPort+attempts-1)
}
