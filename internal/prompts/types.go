// Package prompts provides the instruction sent with every tile.
//
// The default is an embedded Go template. A run may replace it with a
// template file. Every resolved prompt carries a hash so each recorded call
// can be traced to the exact instruction text it used.
package prompts

// Prompt is a registered instruction template.
type Prompt struct {
	Key         string   `json:"key" yaml:"key"`
	Text        string   `json:"text" yaml:"text"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Hash        string   `json:"hash" yaml:"hash"`
}

// Source says where a resolved prompt came from.
type Source string

const (
	SourceEmbedded Source = "embedded"
	SourceFile     Source = "file"
)

// Resolved is a rendered instruction ready to send.
type Resolved struct {
	Key    string `json:"key" yaml:"key"`
	Text   string `json:"text" yaml:"text"`
	Hash   string `json:"hash" yaml:"hash"`
	Source Source `json:"source" yaml:"source"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Data is the template input.
type Data struct {
	Subject string
	Mode    string
}
