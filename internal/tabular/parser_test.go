package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer(t *testing.T) {
	t.Run("空串为null", func(t *testing.T) {
		assert.True(t, Infer("").IsNull())
		assert.Nil(t, Infer("").Native())
	})

	t.Run("全数字为整数", func(t *testing.T) {
		v := Infer("42")
		assert.Equal(t, KindInt, v.Kind)
		assert.Equal(t, int64(42), v.Native())
	})

	t.Run("数字点数字为浮点", func(t *testing.T) {
		v := Infer("3.14")
		assert.Equal(t, KindFloat, v.Kind)
		assert.InDelta(t, 3.14, v.Native(), 1e-9)
	})

	t.Run("不做部分数字解析", func(t *testing.T) {
		v := Infer("42a")
		assert.Equal(t, KindString, v.Kind)
		assert.Equal(t, "42a", v.Native())
	})

	t.Run("不做区域化解析", func(t *testing.T) {
		assert.Equal(t, KindString, Infer("1,5").Kind)
		assert.Equal(t, KindString, Infer("-7").Kind)
		assert.Equal(t, KindString, Infer(".5").Kind)
		assert.Equal(t, KindString, Infer("5.").Kind)
	})

	t.Run("超出int64范围按字符串处理", func(t *testing.T) {
		v := Infer("99999999999999999999")
		assert.Equal(t, KindString, v.Kind)
		assert.Equal(t, "99999999999999999999", v.Raw)
	})

	t.Run("保留原始文本", func(t *testing.T) {
		v := Infer("01234")
		assert.Equal(t, KindInt, v.Kind)
		assert.Equal(t, "01234", v.Raw)
	})
}

func TestParse(t *testing.T) {
	t.Run("引号内的分隔符与换行原样保留", func(t *testing.T) {
		original := "line one, with comma\nline \"two\""
		quoted := `"` + strings.ReplaceAll(original, `"`, `""`) + `"`
		input := "ID,NOTES\n1," + quoted + "\n2,plain\n"

		res := ParseString(input, Options{})
		require.Empty(t, res.Errors)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, original, res.Rows[0].Get("NOTES").Raw)
		assert.Equal(t, int64(1), res.Rows[0].Get("ID").Int)
		assert.Equal(t, "plain", res.Rows[1].Get("NOTES").Raw)
		// 第二条记录起始于第 4 行
		assert.Equal(t, 4, res.Rows[1].Line)
	})

	t.Run("空输入返回文件级错误", func(t *testing.T) {
		res := ParseString("", Options{})
		assert.Empty(t, res.Rows)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 0, res.Errors[0].Line)

		res = ParseString("\n\n   \n", Options{})
		assert.Empty(t, res.Rows)
		assert.Len(t, res.Errors, 1)
	})

	t.Run("只有表头时返回空行集且无错误", func(t *testing.T) {
		res := ParseString("CUSTOMERID,FIRSTNAME\n", Options{})
		assert.Empty(t, res.Rows)
		assert.Empty(t, res.Errors)
		assert.Equal(t, []string{"CUSTOMERID", "FIRSTNAME"}, res.Headers)
	})

	t.Run("坏行记录行号并继续解析", func(t *testing.T) {
		input := "ID,NAME\n1,ok\n2,bad\"quote\n3,fine\n"
		res := ParseString(input, Options{})

		require.Len(t, res.Errors, 1)
		assert.Equal(t, 3, res.Errors[0].Line)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, int64(1), res.Rows[0].Get("ID").Int)
		assert.Equal(t, int64(3), res.Rows[1].Get("ID").Int)
	})

	t.Run("未闭合引号只丢弃起始行", func(t *testing.T) {
		input := "A,B\n1,\"x\"y\"\n2,ok\n3,\"unterminated\n4,fine\n5,ok\n"
		res := ParseString(input, Options{})

		require.Len(t, res.Errors, 2)
		assert.Equal(t, 2, res.Errors[0].Line)
		assert.Equal(t, 4, res.Errors[1].Line)

		require.Len(t, res.Rows, 3)
		assert.Equal(t, int64(2), res.Rows[0].Get("A").Int)
		assert.Equal(t, int64(4), res.Rows[1].Get("A").Int)
		assert.Equal(t, "fine", res.Rows[1].Get("B").Raw)
		assert.Equal(t, 5, res.Rows[1].Line)
		assert.Equal(t, int64(5), res.Rows[2].Get("A").Int)
		assert.Equal(t, 6, res.Rows[2].Line)
	})

	t.Run("未闭合引号位于末行", func(t *testing.T) {
		res := ParseString("A,B\n1,ok\n2,\"open\n", Options{})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 3, res.Errors[0].Line)
		require.Len(t, res.Rows, 1)
	})

	t.Run("加引号的字段保留首尾空白", func(t *testing.T) {
		res := ParseString("ID,NOTES\n 1 ,\" a,b\nc \"\n2,  plain  \n", Options{})
		require.Empty(t, res.Errors)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, int64(1), res.Rows[0].Get("ID").Int)
		assert.Equal(t, " a,b\nc ", res.Rows[0].Get("NOTES").Raw)
		assert.Equal(t, "plain", res.Rows[1].Get("NOTES").Raw)
	})

	t.Run("宽松模式接受裸引号", func(t *testing.T) {
		res := ParseString("ID,NAME\n2,bad\"quote\n", Options{Lenient: true})
		assert.Empty(t, res.Errors)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, `bad"quote`, res.Rows[0].Get("NAME").Raw)
	})

	t.Run("列数不一致时补齐或截断并给出警告", func(t *testing.T) {
		res := ParseString("A,B,C\n1\n1,2,3,4\n", Options{})
		require.Len(t, res.Rows, 2)
		assert.True(t, res.Rows[0].Get("C").IsNull())
		assert.Equal(t, int64(3), res.Rows[1].Get("C").Int)
		assert.Len(t, res.Warnings, 2)
		assert.Empty(t, res.Errors)
	})

	t.Run("字段名映射只改写映射中的列", func(t *testing.T) {
		res := ParseString("CustNo,FIRSTNAME\n7,Ann\n", Options{
			FieldMapping: map[string]string{"CustNo": "CUSTOMERID"},
		})
		require.Len(t, res.Rows, 1)
		assert.Equal(t, []string{"CUSTOMERID", "FIRSTNAME"}, res.Headers)
		assert.Equal(t, int64(7), res.Rows[0].Get("CUSTOMERID").Int)
		assert.Equal(t, "Ann", res.Rows[0].Get("FIRSTNAME").Raw)
	})

	t.Run("去除首尾空白并跳过空行", func(t *testing.T) {
		res := ParseString("ID , NAME\n\n 5 ,  Jane  \n\n", Options{})
		require.Len(t, res.Rows, 1)
		assert.Equal(t, int64(5), res.Rows[0].Get("ID").Int)
		assert.Equal(t, "Jane", res.Rows[0].Get("NAME").Raw)
	})

	t.Run("支持制表符分隔", func(t *testing.T) {
		res := ParseString("ID\tNAME\n1\tA, B\n", Options{Delimiter: '\t'})
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "A, B", res.Rows[0].Get("NAME").Raw)
	})

	t.Run("CRLF换行", func(t *testing.T) {
		res := ParseString("ID,NAME\r\n1,A\r\n2,B\r\n", Options{})
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "B", res.Rows[1].Get("NAME").Raw)
	})
}

func TestDetectAndDecode(t *testing.T) {
	t.Run("去除UTF-8 BOM", func(t *testing.T) {
		out, enc, err := DetectAndDecode([]byte("\xEF\xBB\xBFID\n1\n"))
		require.NoError(t, err)
		assert.Equal(t, "utf-8-bom", enc)
		assert.Equal(t, "ID\n1\n", string(out))
	})

	t.Run("非UTF-8按Windows-1252解码", func(t *testing.T) {
		// 0xE9 = é, 0x93/0x94 = 弯引号
		out, enc, err := DetectAndDecode([]byte("Caf\xE9 \x93x\x94"))
		require.NoError(t, err)
		assert.Equal(t, "windows-1252", enc)
		assert.Equal(t, "Café “x”", string(out))
	})

	t.Run("UTF-16LE带BOM", func(t *testing.T) {
		out, enc, err := DetectAndDecode([]byte{0xFF, 0xFE, 'I', 0, 'D', 0})
		require.NoError(t, err)
		assert.Equal(t, "utf-16le", enc)
		assert.Equal(t, "ID", string(out))
	})

	t.Run("解析时自动解码", func(t *testing.T) {
		res := Parse([]byte("ID,NAME\n1,Jos\xE9\n"), Options{})
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "José", res.Rows[0].Get("NAME").Raw)
		assert.Equal(t, "windows-1252", res.Encoding)
	})
}
