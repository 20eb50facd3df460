//go:build !(linux || darwin || freebsd)

package medium

import "syscall"

func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
