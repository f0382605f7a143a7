// Package fontbuild defines the documents exchanged with the font build
// worker: the request written to its stdin and the result it prints as its
// final stdout line.
package fontbuild

import (
	"encoding/json"
	"fmt"
)

// Request describes one font build. It is serialized once per run and
// crosses the process boundary exactly once.
type Request struct {
	InputDir   string   `json:"inputDir,omitempty"`
	OutputDir  string   `json:"outputDir,omitempty"`
	Name       string   `json:"name,omitempty"` // worker default when empty
	FontTypes  []string `json:"fontTypes,omitempty"`
	AssetTypes []string `json:"assetTypes,omitempty"`
	Prefix     string   `json:"prefix,omitempty"`
	Tag        string   `json:"tag,omitempty"`
	FontsURL   string   `json:"fontsUrl,omitempty"`
	ConfigPath string   `json:"configPath,omitempty"`
}

// Result is the tagged union returned by every build. OK discriminates it:
// when true only Data is set, otherwise Error (and possibly Stderr).
type Result struct {
	OK     bool   `json:"ok"`
	Data   *Data  `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// Data is the payload of a successful build.
type Data struct {
	Options      json.RawMessage `json:"options,omitempty"`
	WriteResults []WriteResult   `json:"writeResults"`
	Codepoints   map[string]int  `json:"codepoints"`
}

// WriteResult records one file written by the font library. Bytes is nil
// when the library reported no content for the path.
type WriteResult struct {
	WritePath string `json:"writePath"`
	Bytes     *int64 `json:"bytes"`
}

// Ok returns a successful result carrying data.
func Ok(data *Data) *Result {
	if data == nil {
		data = &Data{}
	}
	if data.WriteResults == nil {
		data.WriteResults = []WriteResult{}
	}
	if data.Codepoints == nil {
		data.Codepoints = map[string]int{}
	}
	return &Result{OK: true, Data: data}
}

// Fail returns a failed result. stderr may be empty.
func Fail(msg, stderr string) *Result {
	return &Result{Error: msg, Stderr: stderr}
}

// Failf returns a failed result with a formatted message and no stderr.
func Failf(format string, args ...any) *Result {
	return Fail(fmt.Sprintf(format, args...), "")
}

// ByteSize reports the encoded size of write-result content: the length of
// byte content, the UTF-8 length of text content, nil for absent content.
func ByteSize(content any) *int64 {
	var n int64
	switch c := content.(type) {
	case []byte:
		n = int64(len(c))
	case string:
		n = int64(len(c))
	case *string:
		if c == nil {
			return nil
		}
		n = int64(len(*c))
	default:
		return nil
	}
	return &n
}
