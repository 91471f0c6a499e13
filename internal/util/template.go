package util

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"text/template"
)

// RenderTemplate renders prompt text with text/template. Text without
// template markers is returned unchanged.
func RenderTemplate(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
		},
		"join": func(sep string, items any) string {
			v := reflect.ValueOf(items)
			if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
				return fmt.Sprintf("%v", items)
			}
			strItems := make([]string, v.Len())
			for i := range strItems {
				strItems[i] = fmt.Sprintf("%v", v.Index(i).Interface())
			}
			return strings.Join(strItems, sep)
		},
		"indent": func(n int, s string) string {
			pad := strings.Repeat(" ", n)
			return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
		},
	}).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Dedent removes the common leading indentation of all non-blank lines and
// trims surrounding blank lines, so prompts can be written as indented raw
// strings.
func Dedent(s string) string {
	lines := strings.Split(s, "\n")
	prefix := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if prefix < 0 || n < prefix {
			prefix = n
		}
	}
	for i, line := range lines {
		if len(line) >= prefix && prefix > 0 {
			lines[i] = line[prefix:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
