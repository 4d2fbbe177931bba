package scanner

import (
	"strconv"

	"github.com/pkg/errors"
)

var (
	notDridexError = errors.New("not a Dridex encoded string")
)

// Keeps only the digits.
func stripChars(input string) (int64, error) {
	digits := make([]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		if input[i] >= '0' && input[i] <= '9' {
			digits = append(digits, input[i])
		}
	}
	return strconv.ParseInt(string(digits), 10, 64)
}

// Replaces every non digit with 0.
func stripCharsWithZero(input string) (int64, error) {
	digits := make([]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		if input[i] >= '0' && input[i] <= '9' {
			digits = append(digits, input[i])
		} else {
			digits = append(digits, '0')
		}
	}
	return strconv.ParseInt(string(digits), 10, 64)
}

// DridexUrlDecode reverses the string obfuscation used by Dridex
// droppers. The encoded text carries its own keys: two numbers in the
// middle give the size of each encoded character, and a block around
// the middle gives the divisor applied to each group of digits.
func DridexUrlDecode(input string) (string, error) {
	if len(input) < 8 {
		return "", notDridexError
	}
	work := input[4 : len(input)-4]

	half := len(work) / 2
	if half < 2 || half+2 > len(work) {
		return "", notDridexError
	}

	key_enc, err := stripCharsWithZero(work[half-2 : half])
	if err != nil {
		return "", notDridexError
	}

	key_size, err := stripCharsWithZero(work[half : half+2])
	if err != nil {
		return "", notDridexError
	}

	char_size := int(key_size - key_enc)
	if char_size <= 0 {
		return "", notDridexError
	}
	work = work[:half-2] + work[half+2:]

	half = len(work) / 2
	start := half - char_size/2
	end := half + char_size/2
	if start < 0 || end > len(work) || start >= end {
		return "", notDridexError
	}

	divisor, err := stripChars(work[start:end])
	if err != nil || divisor == 0 {
		return "", notDridexError
	}
	work = work[:start] + work[end:]

	result := make([]byte, 0, len(work)/char_size+1)
	for i := 0; i < len(work); i += char_size {
		end := i + char_size
		if end > len(work) {
			end = len(work)
		}

		value, err := stripChars(work[i:end])
		if err != nil {
			return "", notDridexError
		}

		c := value / divisor
		if c < 0 || c > 255 {
			return "", notDridexError
		}
		result = append(result, byte(c))
	}

	return string(result), nil
}
