package registration

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
)

// transferBase bounds the ten-digit body of a structured communication.
var transferBase = big.NewInt(10_000_000_000)

var transferPattern = regexp.MustCompile(`^\+\+\+(\d{3})/(\d{4})/(\d{5})\+\+\+$`)

// NewTransferReference generates a Belgian structured communication
// (+++DDD/DDDD/DDDDD+++). The last two digits are the first ten modulo 97,
// with 97 standing in for a zero remainder.
func NewTransferReference() (string, error) {
	n, err := rand.Int(rand.Reader, transferBase)
	if err != nil {
		return "", fmt.Errorf("generate transfer reference: %w", err)
	}
	return formatTransferReference(n.Int64()), nil
}

func formatTransferReference(body int64) string {
	digits := fmt.Sprintf("%010d%02d", body, transferChecksum(body))
	return fmt.Sprintf("+++%s/%s/%s+++", digits[0:3], digits[3:7], digits[7:12])
}

func transferChecksum(body int64) int64 {
	check := body % 97
	if check == 0 {
		return 97
	}
	return check
}

// ValidTransferReference reports whether s is a well-formed structured
// communication with a correct checksum.
func ValidTransferReference(s string) bool {
	m := transferPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	digits := m[1] + m[2] + m[3]
	body, err := strconv.ParseInt(digits[:10], 10, 64)
	if err != nil {
		return false
	}
	check, err := strconv.ParseInt(digits[10:], 10, 64)
	if err != nil {
		return false
	}
	return transferChecksum(body) == check
}
