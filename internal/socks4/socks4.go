package socks4

import "errors"

const (
	Version byte = 0x04

	CmdConnect byte = 0x01
	CmdBind    byte = 0x02

	StatusGranted    byte = 0x5a
	StatusRejected   byte = 0x5b
	StatusAuthFailed byte = 0x5d
)

// maxFieldLen bounds the NUL-terminated user id and hostname fields.
const maxFieldLen = 1024

var (
	ErrIllegalCommand = errors.New("socks4: illegal command")
	ErrProtocol       = errors.New("socks4: protocol error")
)
