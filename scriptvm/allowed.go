package scriptvm

import (
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// AllowedPackages are the stdlib symbol tables scripts may import, keyed the
// way yaegi expects ("importPath/pkgName").
var AllowedPackages = []string{
	"bytes/bytes",
	"encoding/json/json",
	"errors/errors",
	"fmt/fmt",
	"math/math",
	"math/rand/rand",
	"regexp/regexp",
	"sort/sort",
	"strconv/strconv",
	"strings/strings",
	"time/time",
	"unicode/utf8/utf8",
}

// Restricted returns the allowed subset of the yaegi stdlib.
func Restricted() interp.Exports {
	restricted := interp.Exports{}
	for _, key := range AllowedPackages {
		if syms, ok := stdlib.Symbols[key]; ok {
			restricted[key] = syms
		}
	}
	return restricted
}

// importPath turns "math/rand/rand" into "math/rand".
func importPath(key string) string {
	if i := strings.LastIndex(key, "/"); i > 0 {
		return key[:i]
	}
	return key
}

// importBlock imports every package in exports so script bodies can use
// them without an import clause.
func importBlock(exports ...interp.Exports) string {
	var b strings.Builder
	b.WriteString("import (\n")
	for _, ex := range exports {
		for key := range ex {
			b.WriteString("\t\"" + importPath(key) + "\"\n")
		}
	}
	b.WriteString(")")
	return b.String()
}
