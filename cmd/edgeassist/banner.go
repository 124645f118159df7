package main

import (
	"fmt"
	"strings"

	"github.com/mazznoer/colorgrad"
)

func banner() string {
	art := `
           _                              _     _
  ___   __| |  __ _   ___   __ _   ___  ___ (_)  ___ | |_
 / _ \ / _' | / _' | / _ \ / _' | / __|/ __|| | / __|| __|
|  __/| (_| || (_| ||  __/| (_| | \__ \\__ \| | \__ \| |_
 \___| \__,_| \__, | \___| \__,_| |___/|___/|_| |___/ \__|
              |___/          local assistant  [v` + version + `]
`
	grad, err := colorgrad.NewGradient().
		HtmlColors("#f0a011", "#2ec4b6").
		Build()
	if err != nil {
		return art
	}

	lines := strings.Split(art, "\n")
	maxLen := 0
	for _, line := range lines {
		maxLen = max(maxLen, len(line))
	}

	colors := grad.Colors(uint(maxLen))
	var b strings.Builder
	for _, line := range lines {
		for i, ch := range line {
			r, g, bl, _ := colors[i].RGBA255()
			fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm%c", r, g, bl, ch)
		}
		b.WriteString("\x1b[0m\n")
	}
	return b.String()
}
