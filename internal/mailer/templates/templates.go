// Package templates встраивает текстовые шаблоны писем.
package templates

import "embed"

//go:embed *.txt
var Files embed.FS
