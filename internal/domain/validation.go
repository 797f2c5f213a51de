package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// RFC 5322 长度限制
const (
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253
)

var (
	localPartRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)
	domainRegex    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate 按结构体 validate 标签校验输入，失败时返回包装了 ErrInvalidInput 的错误
func Validate(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %s", ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// NormalizeAddress 统一邮箱地址格式（去空白、小写）
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// NormalizeCode 统一访问码格式（去空白、大写）
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateAddress 校验投递目标地址
func ValidateAddress(addr string) error {
	addr = NormalizeAddress(addr)
	if addr == "" || len(addr) > MaxEmailLength {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}

	at := strings.LastIndex(addr, "@")
	local, domain := addr[:at], addr[at+1:]
	if len(local) > MaxLocalPartLength || !localPartRegex.MatchString(local) || strings.Contains(local, "..") {
		return fmt.Errorf("%w: invalid local part", ErrInvalidInput)
	}
	if len(domain) > MaxDomainLength || !domainRegex.MatchString(domain) {
		return fmt.Errorf("%w: invalid domain", ErrInvalidInput)
	}
	return nil
}
