package app

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"co2mon/kernel"

	"tinygo.org/x/tinyfont"
)

const panicCols = 21

func installPanicHandler(s *System, halt func()) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		s.log.Error().Str("op", info.Op).Interface("panic", info.Value).Msg("kernel panic")

		d := s.oled
		d.ClearBuffer()
		lines := []string{"PANIC", info.Op}
		msg := fmt.Sprint(info.Value)
		if v, ok := info.Value.(kernel.Violation); ok {
			msg = v.Msg
		}
		for msg != "" {
			var chunk string
			chunk, msg = takeRunes(msg, panicCols)
			lines = append(lines, chunk)
			msg = strings.TrimLeft(msg, " ")
		}

		y := int16(rowLabel)
		for _, line := range lines {
			if y > 64 {
				break
			}
			tinyfont.WriteLine(d, small, 0, y, line, white)
			y += 11
		}
		_ = d.Display()

		if halt != nil {
			halt()
		}
	})
}

func takeRunes(s string, n int) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	i, count := 0, 0
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		count++
	}
	return s[:i], s[i:]
}
