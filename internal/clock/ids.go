package clock

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// CodeAlphabet 访问码字符集
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// LocalPartAlphabet 邮箱本地部分字符集
	LocalPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// IDSource 生成实体标识符
type IDSource interface {
	NewID() string
}

// UUIDSource 基于 UUID v4 的标识符
type UUIDSource struct{}

// NewID 返回新的 UUID 字符串
func (UUIDSource) NewID() string {
	return uuid.NewString()
}

// RandomString 从 alphabet 中均匀随机选取 n 个字符
func RandomString(alphabet string, n int) (string, error) {
	if n <= 0 || alphabet == "" {
		return "", fmt.Errorf("invalid random string parameters: n=%d", n)
	}
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
