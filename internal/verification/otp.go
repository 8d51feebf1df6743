package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// otpMin/otpMax は6桁コードの範囲。[100000, 999999] の一様乱数。
const (
	otpMin = 100000
	otpMax = 999999
)

// GenerateOTP は6桁の数字OTPコードを生成する。
// crypto/randによる一様乱数で、先頭が0になることはない。
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
