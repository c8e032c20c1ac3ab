//go:build !unix

package ingest

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error { return nil }
