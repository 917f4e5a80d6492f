package rss

import (
	"strings"
	"time"
)

// Date は日付タグから取り出した日時フィールドを保持する。
// 認識できない形式の場合もエラーにはせず、Parsedをfalseにして各フィールドを0のままにする。
// 形式に一致したが年や月が欠けている場合、それぞれ1900年と1月になる。
type Date struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int

	// Present は日付タグが存在したかどうか。
	Present bool
	// Parsed は3形式のいずれかに一致したかどうか。
	Parsed bool
}

var monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// ParseDate は日付文字列を固定位置の文字で判別して分解する。
//   - 10文字目が 'T': YYYY-MM-DDThh:mm[:ss]
//   - 3文字目が ',' かつ4文字目が ' ': Dow, DD Mon YYYY hh:mm[:ss] TZ
//   - 4文字目と7文字目が '-': YYYY-MM-DD
//
// タイムゾーン表記は読まず、ローカル時刻として扱う。
func ParseDate(s string) Date {
	d := Date{Present: true}

	// 欠けたフィールドは既定値のまま残す
	year := func(f string) { d.Year = orDefault(f, 1900, atoi) }
	month := func(f string, conv func(string) int) { d.Month = orDefault(f, 1, conv) }

	switch {
	case len(s) > 10 && s[10] == 'T':
		sc := newDateScanner(s)
		year(sc.field(4))
		sc.literal('-')
		month(sc.field(2), atoi)
		sc.literal('-')
		d.Day = atoi(sc.field(2))
		sc.literal('T')
		d.Hour = atoi(sc.field(2))
		sc.literal(':')
		d.Minute = atoi(sc.field(2))
		sc.literal(':')
		d.Second = atoi(sc.field(2))
		d.Parsed = true

	case len(s) > 4 && s[3] == ',' && s[4] == ' ':
		sc := newDateScanner(s[5:])
		d.Day = atoi(sc.field(2))
		sc.literal(' ')
		month(sc.field(0), monthNumber)
		sc.literal(' ')
		year(sc.field(4))
		sc.literal(' ')
		d.Hour = atoi(sc.field(2))
		sc.literal(':')
		d.Minute = atoi(sc.field(2))
		sc.literal(':')
		d.Second = atoi(sc.field(2))
		d.Parsed = true

	case len(s) > 7 && s[4] == '-' && s[7] == '-':
		sc := newDateScanner(s)
		year(sc.field(4))
		sc.literal('-')
		month(sc.field(2), atoi)
		sc.literal('-')
		d.Day = atoi(sc.field(2))
		d.Parsed = true
	}

	return d
}

// Time はローカルタイムゾーンで日時を返す。
func (d Date) Time() time.Time {
	return d.TimeIn(time.Local)
}

// TimeIn は指定タイムゾーンで日時を返す。
// 範囲外のフィールドはtime.Dateと同様に正規化される。
// 形式を認識できなかった場合は1900-01-01 00:00を返す。
func (d Date) TimeIn(loc *time.Location) time.Time {
	if !d.Parsed {
		return time.Date(1900, time.January, 1, 0, 0, 0, 0, loc)
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second, 0, loc)
}

// Unix はエポック秒を返す。日付タグが存在しなかった場合は0を返す。
func (d Date) Unix() int64 {
	if !d.Present {
		return 0
	}
	return d.Time().Unix()
}

// orDefault は空のフィールドにdefを、それ以外はconvの結果を返す。
func orDefault(f string, def int, conv func(string) int) int {
	if f == "" {
		return def
	}
	return conv(f)
}

// monthNumber は英語3文字の月名を1〜12に変換する。大文字小文字は区別しない。
// 一致しない場合は数値として解釈する。
func monthNumber(s string) int {
	for i, name := range monthNames {
		if strings.EqualFold(s, name) {
			return i + 1
		}
	}
	return atoi(s)
}

// atoi は先頭の符号と数字のみを解釈する。数字がない場合は0を返す。
func atoi(s string) int {
	s = strings.TrimLeft(s, " \t\r\n")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}

// dateScanner は幅指定付きの単語と区切り文字を順に読み取る。
// 区切り文字が一致しなかった時点で以降のフィールドはすべて空になる。
type dateScanner struct {
	s   string
	pos int
	ok  bool
}

func newDateScanner(s string) *dateScanner {
	return &dateScanner{s: s, ok: true}
}

// field は空白を読み飛ばした後、最大max文字（0は無制限）の非空白文字列を読む。
func (sc *dateScanner) field(max int) string {
	if !sc.ok {
		return ""
	}
	sc.skipSpace()
	start := sc.pos
	for sc.pos < len(sc.s) && !isSpace(sc.s[sc.pos]) && (max <= 0 || sc.pos-start < max) {
		sc.pos++
	}
	if sc.pos == start {
		sc.ok = false
		return ""
	}
	return sc.s[start:sc.pos]
}

// literal は区切り文字を1文字読む。' ' は任意個の空白に一致する。
func (sc *dateScanner) literal(c byte) {
	if !sc.ok {
		return
	}
	if c == ' ' {
		sc.skipSpace()
		return
	}
	if sc.pos < len(sc.s) && sc.s[sc.pos] == c {
		sc.pos++
		return
	}
	sc.ok = false
}

func (sc *dateScanner) skipSpace() {
	for sc.pos < len(sc.s) && isSpace(sc.s[sc.pos]) {
		sc.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
