package model

import (
	"strings"

	pkgerrors "codearena/pkg/errors"
)

// Language is a judge-supported programming language.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageCpp        Language = "cpp"
	LanguageJava       Language = "java"

	DefaultLanguage = LanguagePython
)

// Languages lists the supported languages in display order.
var Languages = []Language{LanguagePython, LanguageJavaScript, LanguageCpp, LanguageJava}

var templates = map[Language]string{
	LanguagePython: `# Read from stdin, write to stdout
# Example: data = input()

`,
	LanguageJavaScript: `// Read from stdin using readline
// Write to stdout using console.log()

`,
	LanguageCpp: `#include <iostream>
using namespace std;

int main() {
    // Your code here
    return 0;
}
`,
	LanguageJava: `import java.util.*;

public class Main {
    public static void main(String[] args) {
        Scanner sc = new Scanner(System.in);
        // Your code here
    }
}
`,
}

var aliases = map[string]Language{
	"py":      LanguagePython,
	"python3": LanguagePython,
	"js":      LanguageJavaScript,
	"node":    LanguageJavaScript,
	"c++":     LanguageCpp,
	"cxx":     LanguageCpp,
}

// ParseLanguage resolves a user-supplied name, including common aliases.
func ParseLanguage(raw string) (Language, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if lang, ok := aliases[name]; ok {
		return lang, nil
	}
	lang := Language(name)
	if _, ok := templates[lang]; !ok {
		return "", pkgerrors.Newf(pkgerrors.LanguageNotSupported, "language %q is not supported", raw)
	}
	return lang, nil
}

// Template returns the starter code for lang.
func (l Language) Template() string {
	return templates[l]
}

func (l Language) Valid() bool {
	_, ok := templates[l]
	return ok
}
