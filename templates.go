package jingle

import (
	_ "embed"
	"strings"
	"text/template"
)

const defaultSessionID = "1923518516"

//go:embed templates/session-header.tmpl
var sessionHeaderTemplateText string

//go:embed templates/provisional-media.tmpl
var provisionalMediaTemplateText string

//go:embed templates/bridge-media.tmpl
var bridgeMediaTemplateText string

var templatedFuncMap = template.FuncMap{
	"Join": func(sep string, elems []string) string {
		return strings.Join(elems, sep)
	},
}

var sessionHeaderTemplate = template.Must(template.New("session-header").Funcs(templatedFuncMap).Parse(sessionHeaderTemplateText))
var provisionalMediaTemplate = template.Must(template.New("provisional-media").Funcs(templatedFuncMap).Parse(provisionalMediaTemplateText))
var bridgeMediaTemplate = template.Must(template.New("bridge-media").Funcs(templatedFuncMap).Parse(bridgeMediaTemplateText))

// renderLines executes t and splits the output into SDP lines. Templates are
// written with "\n" separators; empty lines are dropped.
func renderLines(t *template.Template, data interface{}) (Lines, error) {
	var builder strings.Builder
	if err := t.Execute(&builder, data); err != nil {
		return nil, err
	}
	var lines Lines
	for _, line := range strings.Split(builder.String(), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func sessionHeader(groups []GroupTemplateData) Lines {
	lines, err := renderLines(sessionHeaderTemplate, HeaderTemplateData{
		SessionID:      defaultSessionID,
		SessionVersion: 2,
		Groups:         groups,
	})
	if err != nil {
		// the header template only ranges over plain strings
		panic(err)
	}
	return lines
}
