package domain

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// 联系方式校验相关的错误定义
var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrEmailTooLong = errors.New("email address too long")
)

const (
	MaxEmailLength = 254 // 整个邮箱地址最大长度
	MinPhoneDigits = 7
)

var contactValidate = validator.New()

// emailPlaceholders 旧系统中用来占位的“邮箱”，视为未填写
var emailPlaceholders = map[string]bool{
	"none": true, "n/a": true, "na": true, "-": true, "x": true,
	"no email": true, "noemail": true, "unknown": true,
}

// NormalizeEmail 规范化旧系统中的邮箱字段
//
// 占位值返回空字符串且没有错误；格式无效时返回 ErrInvalidEmail。
// 域名部分转小写，本地部分保持原样。
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" || emailPlaceholders[strings.ToLower(email)] {
		return "", nil
	}
	if len(email) > MaxEmailLength {
		return "", ErrEmailTooLong
	}
	if err := contactValidate.Var(email, "email"); err != nil {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	return email[:at] + "@" + strings.ToLower(email[at+1:]), nil
}

// NormalizePhone 去掉电话号码中的格式字符，保留开头的 +
//
// 数字少于 MinPhoneDigits 位的号码视为无效，返回空字符串。
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsLetter(r):
			// 分机号之后的内容不保留，例如 "555-1234 ext 9"
			return phoneOrEmpty(b.String())
		}
	}
	return phoneOrEmpty(b.String())
}

func phoneOrEmpty(s string) string {
	if len(strings.TrimPrefix(s, "+")) < MinPhoneDigits {
		return ""
	}
	return s
}
