package tabular

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
)

// TagName 结构体字段上声明导出列名的标签
const TagName = "legacy"

var decimalType = reflect.TypeOf(decimal.Decimal{})

// DecodeRow 将一行解码到 out 指向的结构体
//
// 空值不写入目标字段，保持零值（指针字段保持 nil）。
// 字符串字段取原始文本；布尔字段接受 1/0、T/F、Y/N、TRUE/FALSE、YES/NO。
func DecodeRow(row Row, out any) error {
	input := make(map[string]any, len(row.Fields))
	for name, v := range row.Fields {
		if !v.IsNull() {
			input[name] = v
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          TagName,
		WeaklyTypedInput: true,
		DecodeHook:       valueHook,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Decode 将所有行解码为 T，解码失败的行作为行级错误返回
func Decode[T any](rows []Row) ([]T, []LineError) {
	out := make([]T, 0, len(rows))
	var errs []LineError
	for _, row := range rows {
		var item T
		if err := DecodeRow(row, &item); err != nil {
			errs = append(errs, LineError{Line: row.Line, Message: err.Error()})
			continue
		}
		out = append(out, item)
	}
	return out, errs
}

func valueHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	v, ok := data.(Value)
	if !ok {
		return data, nil
	}

	target := to
	for target.Kind() == reflect.Ptr {
		target = target.Elem()
	}

	switch {
	case target == decimalType:
		d, err := decimal.NewFromString(v.Raw)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q", v.Raw)
		}
		return d, nil
	case target.Kind() == reflect.String:
		return v.Raw, nil
	case target.Kind() == reflect.Bool:
		return parseFlag(v.Raw)
	}
	return v.Native(), nil
}

func parseFlag(raw string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "1", "T", "TRUE", "Y", "YES":
		return true, nil
	case "0", "F", "FALSE", "N", "NO":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag %q", raw)
}
