package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseSyncPattern converts a hex string such as "0x1ACFFC1D" into raw
// bytes. An odd number of digits is left-padded with a zero nibble. Nil
// spellings ("", "nil", "NULL", ...) return a nil pattern and no error.
func ParseSyncPattern(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if isNil(s) {
		return nil, nil
	}

	digits := s
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
	}
	digits = strings.ReplaceAll(digits, "_", "")
	if digits == "" {
		return nil, fmt.Errorf("%w: %q has no digits", ErrInvalidSyncPattern, s)
	}
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}

	pattern, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSyncPattern, s, err)
	}
	return pattern, nil
}

// FormatSyncPattern renders a pattern the way it is written in config files.
func FormatSyncPattern(pattern []byte) string {
	if len(pattern) == 0 {
		return ""
	}
	return "0x" + strings.ToUpper(hex.EncodeToString(pattern))
}

// parseDiscard parses a discard_leading_bytes argument.
func parseDiscard(s string) (int, error) {
	s = strings.TrimSpace(s)
	if isNil(s) {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: discard_leading_bytes %q", ErrInvalidArgument, s)
	}
	if n < 0 {
		return 0, ErrNegativeDiscard
	}
	return n, nil
}

// parseBool accepts the boolean spellings used in interface definitions.
func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if isNil(s) {
		return false, nil
	}
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: boolean %q", ErrInvalidArgument, s)
}

func isNil(s string) bool {
	switch strings.ToLower(s) {
	case "", "nil", "null", "none":
		return true
	}
	return false
}
