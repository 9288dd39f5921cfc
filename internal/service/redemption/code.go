package redemption

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ShiraazMoollatjie/goluhn"

	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

const codeBodyDigits = 11

type CodeGenerator interface {
	Generate() (string, error)
}

// LuhnCodes issues twelve digit codes whose last digit is a Luhn check digit,
// so a mistyped code is rejected before it reaches the store.
type LuhnCodes struct{}

func (LuhnCodes) Generate() (string, error) {
	var sb strings.Builder
	ten := big.NewInt(10)
	for range codeBodyDigits {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		sb.WriteString(d.String())
	}

	_, full, err := goluhn.Calculate(sb.String())
	if err != nil {
		return "", fmt.Errorf("failed to calculate check digit: %w", err)
	}
	return full, nil
}

// NormalizeCode strips separators a user may have typed and validates the check digit.
func NormalizeCode(raw string) (string, error) {
	code := strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, raw)
	if len(code) != codeBodyDigits+1 {
		return "", serviceerrs.ErrInvalidCode
	}
	if err := goluhn.Validate(code); err != nil {
		return "", serviceerrs.ErrInvalidCode
	}
	return code, nil
}

// FormatCode groups a code in blocks of four for display.
func FormatCode(code string) string {
	var parts []string
	for i := 0; i < len(code); i += 4 {
		parts = append(parts, code[i:min(i+4, len(code))])
	}
	return strings.Join(parts, "-")
}
