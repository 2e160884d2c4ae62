package cfhd

import "fmt"

// ConfigError is returned by PrepareToEncode/PrepareToDecode when no
// viable pixel-format, dimension, or quality mapping exists.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cfhd: unsupported configuration: %s", e.Reason)
}

// TruncatedError is returned when the decoder runs off the end of the
// input bitstream before reaching the expected structural element.
type TruncatedError struct {
	Offset int // byte offset into the sample at which truncation was detected
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("cfhd: sample truncated at byte offset %d", e.Offset)
}

// CorruptError is returned when a required tag is missing, a declared
// length is inconsistent, the FSM reaches an undefined transition, or a
// band's end-of-band marker is not found within the band area.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("cfhd: corrupt sample: %s", e.Reason)
}

// OutputTooSmallError is returned by DecodeSample when the caller-supplied
// output buffer cannot hold the decoded frame.
type OutputTooSmallError struct {
	Need, Have int
}

func (e *OutputTooSmallError) Error() string {
	return fmt.Sprintf("cfhd: output buffer too small: need %d bytes, have %d", e.Need, e.Have)
}

// ErrCancelled is returned by async encoder-pool calls drained after Stop.
var ErrCancelled = fmt.Errorf("cfhd: operation cancelled")

// IoError wraps a non-fatal metadata-overlay file error. Io errors are
// never fatal to sample decoding: they are logged and the affected
// priority tier is skipped (spec §7 "Recovery policy").
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("cfhd: io error reading %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// InternalError signals an invariant violation (programmer bug), never a
// malformed-input condition.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("cfhd: internal error: %s", e.Reason)
}
