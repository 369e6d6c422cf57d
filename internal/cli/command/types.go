package command

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	// FieldFile values are paths; Execute replaces them with the file contents.
	FieldFile
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
}

// Handler executes a command against the wired client.
type Handler func(ctx context.Context, app *App, params Params) error

// Command defines a CLI command binding.
type Command struct {
	Service string
	Action  string
	Usage   string
	Fields  []Field
	Run     Handler
}

// Key is the registry key, "service action".
func (c Command) Key() string {
	return c.Service + " " + c.Action
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// ParseArgs turns key=value tokens into Params. A bare token is bound to the
// command's first field, so `problem show 3` equals `problem show id=3`.
func ParseArgs(cmd Command, tokens []string) (Params, error) {
	params := Params{}
	for i, token := range tokens {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) == 2 {
			params.Set(parts[0], parts[1])
			continue
		}
		if i == 0 && len(cmd.Fields) > 0 {
			params.Set(cmd.Fields[0].Name, token)
			continue
		}
		return nil, fmt.Errorf("invalid param: %s", token)
	}
	params.Canonicalize(cmd.Fields)
	return params, nil
}

// Missing returns the required fields that have no value yet.
func Missing(cmd Command, params Params) []Field {
	var out []Field
	for _, field := range cmd.Fields {
		if field.Required && strings.TrimSpace(params.Get(field.Name)) == "" {
			out = append(out, field)
		}
	}
	return out
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}
