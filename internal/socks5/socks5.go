package socks5

import (
	"errors"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	Version byte = 0x05

	MethodNone         byte = txsocks5.MethodNone
	MethodNoAcceptable byte = 0xff

	CmdConnect byte = txsocks5.CmdConnect
	CmdBind    byte = txsocks5.CmdBind

	ATYPIPv4   byte = txsocks5.ATYPIPv4
	ATYPDomain byte = txsocks5.ATYPDomain
	ATYPIPv6   byte = txsocks5.ATYPIPv6
)

// Reply status codes.
const (
	StatusSucceeded               byte = txsocks5.RepSuccess
	StatusGeneralFailure          byte = txsocks5.RepServerFailure
	StatusHostUnreachable         byte = txsocks5.RepHostUnreachable
	StatusConnectionRefused       byte = txsocks5.RepConnectionRefused
	StatusCommandNotSupported     byte = txsocks5.RepCommandNotSupported
	StatusAddressTypeNotSupported byte = txsocks5.RepAddressNotSupported
)

var (
	ErrProtocol           = errors.New("socks5: protocol error")
	ErrIllegalCommand     = errors.New("socks5: illegal command")
	ErrIllegalAddressType = errors.New("socks5: illegal address type")
	ErrAuthNotSupported   = errors.New("socks5: no supported authentication method")
)
