// Package sandbox runs code on the remote execution service and keeps a local run history.
package sandbox

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"shaneshark.com/portfolio/internal/apperr"
)

// MaxCodeBytes caps the source sent to the runner
const MaxCodeBytes = 64 * 1024

// Language is one runtime offered by the runner
type Language struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	DefaultCode    string `json:"defaultCode"`
	MonacoLanguage string `json:"monacoLanguage,omitempty"`
}

var languages = []Language{
	{ID: "java", Name: "Java", Version: "8", MonacoLanguage: "java",
		DefaultCode: "class Code {\n  public static void main(String[] args) {\n    System.out.println(\"你好，世界!\");\n  }\n}"},
	{ID: "python", Name: "Python 3", Version: "3.9.18", MonacoLanguage: "python",
		DefaultCode: "print(\"你好，世界!\")"},
	{ID: "cpp", Name: "C++", Version: "14.2", MonacoLanguage: "cpp",
		DefaultCode: "#include <iostream>\nusing namespace std;\n\nint main() {\n    cout << \"你好，世界!\" << endl;\n    return 0;\n}"},
	{ID: "c", Name: "C", Version: "14.2", MonacoLanguage: "c",
		DefaultCode: "#include <stdio.h>\n\nint main() {\n    printf(\"你好，世界!\\n\");\n    return 0;\n}"},
	{ID: "go", Name: "Go", Version: "1.18", MonacoLanguage: "go",
		DefaultCode: "package main\n\nimport \"fmt\"\n\nfunc main() {\n    fmt.Println(\"你好，世界!\")\n}"},
	{ID: "nodejs", Name: "Node.js", Version: "22", MonacoLanguage: "javascript",
		DefaultCode: "console.log(\"你好，世界!\");"},
}

// Languages returns a copy of the catalogue
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LookupLanguage finds a catalogue entry by id
func LookupLanguage(id string) (Language, bool) {
	for _, l := range languages {
		if l.ID == id {
			return l, true
		}
	}
	return Language{}, false
}

// Validate checks req and fills in the catalogue version when it is empty
func Validate(req *ExecutionRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return apperr.Params("code is required")
	}
	if len(req.Code) > MaxCodeBytes {
		return apperr.Params(fmt.Sprintf("code is %s, the limit is %s",
			humanize.IBytes(uint64(len(req.Code))), humanize.IBytes(MaxCodeBytes)))
	}
	lang, ok := LookupLanguage(req.Type)
	if !ok {
		return apperr.Params(fmt.Sprintf("unsupported language %q", req.Type))
	}
	if strings.TrimSpace(req.Version) == "" {
		req.Version = lang.Version
	}
	return nil
}
