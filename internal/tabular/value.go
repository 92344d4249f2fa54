package tabular

import (
	"regexp"
	"strconv"
)

// Kind 字段推断出的类型
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

var (
	intPattern   = regexp.MustCompile(`^\d+$`)
	floatPattern = regexp.MustCompile(`^\d+\.\d+$`)
)

// Value 单个字段值：保留原始文本，同时记录推断出的类型
//
// 原始文本用于字符串目标字段，避免邮编等数字形态的文本丢失前导零。
type Value struct {
	Kind  Kind
	Raw   string
	Int   int64
	Float float64
}

// Infer 按固定优先级推断类型：空串 -> null；全数字 -> int；数字.数字 -> float；其余 -> string。
// 不做区域化解析，也不做部分数字解析。超出 int64 范围的全数字串按字符串处理。
func Infer(raw string) Value {
	switch {
	case raw == "":
		return Value{Kind: KindNull}
	case intPattern.MatchString(raw):
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{Kind: KindString, Raw: raw}
		}
		return Value{Kind: KindInt, Raw: raw, Int: n}
	case floatPattern.MatchString(raw):
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{Kind: KindString, Raw: raw}
		}
		return Value{Kind: KindFloat, Raw: raw, Float: f}
	default:
		return Value{Kind: KindString, Raw: raw}
	}
}

// IsNull 是否为空值
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Native 返回对应的 Go 值：nil、int64、float64 或 string
func (v Value) Native() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	default:
		return v.Raw
	}
}

func (v Value) String() string { return v.Raw }
