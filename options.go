package sftpengine

import (
	"fmt"
	"math"
	"time"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client) error

// WithMaxInflight sets the maximum number of requests the engine will have
// outstanding at once. It generates an error for a count less than one.
func WithMaxInflight(count int) ClientOption {
	return func(cl *Client) error {
		if count < 1 {
			return fmt.Errorf("sftp: max inflight requests cannot be less than 1, was: %d", count)
		}
		cl.maxInflight = count
		return nil
	}
}

// WithMaxPacketLength sets the ceiling on a decoded frame's declared
// length. The ceiling can only be increased: an attempt to lower it below
// its current value is silently ignored.
func WithMaxPacketLength(length int) ClientOption {
	return func(cl *Client) error {
		if int64(length) > math.MaxUint32 {
			return fmt.Errorf("sftp: max packet length must fit in a uint32: %d", length)
		}
		if length < 0 {
			return nil
		}
		cl.maxPacket = max(cl.maxPacket, uint32(length))
		return nil
	}
}

// WithMaxDataLength sets the maximum size of a single READ/WRITE payload,
// and raises the maximum packet length to accommodate it plus header
// overhead if necessary.
func WithMaxDataLength(length int) ClientOption {
	withPktLen := WithMaxPacketLength(length + 1024)

	return func(cl *Client) error {
		if err := withPktLen(cl); err != nil {
			return err
		}
		if int64(length) > math.MaxUint32 {
			return fmt.Errorf("sftp: max data length must fit in a uint32: %d", length)
		}
		if length < 1 {
			return fmt.Errorf("sftp: max data length cannot be less than 1, was: %d", length)
		}
		cl.maxDataLen = length
		return nil
	}
}

// WithTimeout sets the default per-operation timeout (default 30s).
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) error {
		if d <= 0 {
			return fmt.Errorf("sftp: timeout must be positive, was: %s", d)
		}
		cl.timeout = d
		return nil
	}
}

// WithPathSeparator overrides the separator the PathHelper uses (default
// "/"). Almost no caller needs this; it exists because spec.md's PathHelper
// is defined over a configurable separator.
func WithPathSeparator(sep string) ClientOption {
	return func(cl *Client) error {
		if sep == "" {
			return fmt.Errorf("sftp: path separator cannot be empty")
		}
		cl.pathSeparator = sep
		return nil
	}
}

// WithSubsystemName overrides the SSH subsystem name NewClient requests
// (default "sftp").
func WithSubsystemName(name string) ClientOption {
	return func(cl *Client) error {
		if name == "" {
			return fmt.Errorf("sftp: subsystem name cannot be empty")
		}
		cl.subsystemName = name
		return nil
	}
}

// Logger receives one-line diagnostic messages the engine has no other way
// to surface to the caller, e.g. the server downgrading the protocol
// version during init, or a RENAME with NATIVE plus other flags silently
// dropping the others.
type Logger func(format string, args ...any)

// WithLogger installs a Logger. The default is a no-op: the engine is a
// library, not a daemon, and does not log unless asked to.
func WithLogger(logger Logger) ClientOption {
	return func(cl *Client) error {
		if logger == nil {
			return fmt.Errorf("sftp: logger cannot be nil")
		}
		cl.logger = logger
		return nil
	}
}

const (
	// MaxSupportedVersion is the highest SFTP protocol version this engine
	// speaks; INIT always requests exactly this version.
	MaxSupportedVersion = 3

	defaultSubsystemName = "sftp"
	defaultPathSeparator = "/"
	defaultTimeout       = 30 * time.Second
	defaultMaxInflight   = 64
	defaultMaxDataLen    = 32 * 1024
)

var defaultMaxPacket = filexfer.DefaultMaxPacketLength
