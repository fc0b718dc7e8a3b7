package domain

import (
	"net/http"
	"strconv"
	"strings"
)

func httpStatusText(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code) + " " + strings.ToLower(text)
}
