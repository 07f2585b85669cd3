package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeColor 把 "#facf24"、"FACF24" 之类的写法统一成 "#FACF24"。空字串表示不设颜色。
func NormalizeColor(hexColor string) (string, bool) {
	hexColor = strings.TrimPrefix(strings.TrimSpace(hexColor), "#")
	if hexColor == "" {
		return "", true
	}
	if len(hexColor) != 6 {
		return "", false
	}
	v, err := strconv.ParseUint(hexColor, 16, 32)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("#%06X", v), true
}
