package stream

import (
	"fmt"
	"strings"

	"github.com/paulschiretz/holland/pkg/util"
)

// Method names a compression scheme.
type Method string

const (
	None  Method = "none"
	Gzip  Method = "gzip"
	Zstd  Method = "zstd"
	Bzip2 Method = "bzip2"
	Xz    Method = "xz"
	Lzop  Method = "lzop"
)

var methodToString = map[Method]string{
	None:  "none",
	Gzip:  "gzip",
	Zstd:  "zstd",
	Bzip2: "bzip2",
	Xz:    "xz",
	Lzop:  "lzop",
}

var stringToMethod map[string]Method

func init() {
	stringToMethod = util.InvertMap(methodToString)
}

var methodExt = map[Method]string{
	None:  "",
	Gzip:  ".gz",
	Zstd:  ".zst",
	Bzip2: ".bz2",
	Xz:    ".xz",
	Lzop:  ".lzo",
}

func (m Method) String() string {
	if s, ok := methodToString[m]; ok {
		return s
	}
	return fmt.Sprintf("unknown_compression_method(%s)", string(m))
}

// Ext returns the file extension of compressed output, including the dot.
func (m Method) Ext() string {
	return methodExt[m]
}

// external reports whether the method is handled by an external program.
func (m Method) external() bool {
	return m == Bzip2 || m == Xz || m == Lzop
}

// ParseMethod parses a method name. An empty string means None.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return None, nil
	}
	if m, ok := stringToMethod[strings.ToLower(s)]; ok {
		return m, nil
	}
	return "", fmt.Errorf("invalid compression method: %q", s)
}

// Methods returns every supported method name.
func Methods() []string {
	return []string{"none", "gzip", "zstd", "bzip2", "xz", "lzop"}
}
