package filexfer

import "errors"

// ErrBadMessage is returned by decoders that encounter structurally invalid
// data: an attributes flag word with unknown bits set, a packet type that
// does not belong where it was found, and similar shape violations. It
// corresponds to the wire status SSH_FX_BAD_MESSAGE.
var ErrBadMessage = errors.New("sftp: bad message")
