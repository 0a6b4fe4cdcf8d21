// Package languages maps Judge0 language identifiers to display names and editor modes.
package languages

import (
	"sort"
)

// PlainText is the editor mode used for any identifier that is not in the catalog.
const PlainText = "plaintext"

// Language describes one execution-service language.
type Language struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	EditorMode  string `json:"editor_mode"`
}

var catalog = map[string]Language{
	"43":   {"43", "Plain Text", "plaintext"},
	"44":   {"44", "Executable", "plaintext"},
	"45":   {"45", "Assembly (NASM 2.14.02)", "assembly"},
	"46":   {"46", "Bash (5.0.0)", "shell"},
	"47":   {"47", "Basic (FBC 1.07.1)", "basic"},
	"48":   {"48", "C (GCC 7.4.0)", "c"},
	"49":   {"49", "C (GCC 8.3.0)", "c"},
	"50":   {"50", "C (GCC 9.2.0)", "c"},
	"51":   {"51", "C# (Mono 6.6.0.161)", "csharp"},
	"52":   {"52", "C++ (GCC 7.4.0)", "cpp"},
	"53":   {"53", "C++ (GCC 8.3.0)", "cpp"},
	"54":   {"54", "C++ (GCC 9.2.0)", "cpp"},
	"55":   {"55", "Common Lisp (SBCL 2.0.0)", "commonlisp"},
	"56":   {"56", "D (DMD 2.089.1)", "d"},
	"57":   {"57", "Elixir (1.9.4)", "elixir"},
	"58":   {"58", "Erlang (OTP 22.2)", "erlang"},
	"59":   {"59", "Fortran (GFortran 9.2.0)", "fortran"},
	"60":   {"60", "Go (1.13.5)", "go"},
	"61":   {"61", "Haskell (GHC 8.8.1)", "haskell"},
	"62":   {"62", "Java (OpenJDK 13.0.1)", "java"},
	"63":   {"63", "JavaScript (Node.js 12.14.0)", "javascript"},
	"64":   {"64", "Lua (5.3.5)", "lua"},
	"65":   {"65", "OCaml (4.09.0)", "ocaml"},
	"66":   {"66", "Octave (5.1.0)", "octave"},
	"67":   {"67", "Pascal (FPC 3.0.4)", "pascal"},
	"68":   {"68", "PHP (7.4.1)", "php"},
	"69":   {"69", "Prolog (GNU Prolog 1.4.5)", "prolog"},
	"70":   {"70", "Python (2.7.17)", "python"},
	"71":   {"71", "Python (3.8.1)", "python"},
	"72":   {"72", "Ruby (2.7.0)", "ruby"},
	"73":   {"73", "Rust (1.40.0)", "rust"},
	"74":   {"74", "TypeScript (3.7.4)", "typescript"},
	"75":   {"75", "C (Clang 7.0.1)", "c"},
	"76":   {"76", "C++ (Clang 7.0.1)", "cpp"},
	"77":   {"77", "COBOL (GnuCOBOL 2.2)", "cobol"},
	"78":   {"78", "Kotlin (1.3.70)", "kotlin"},
	"79":   {"79", "Objective-C (Clang 7.0.1)", "objective-c"},
	"80":   {"80", "R (4.0.0)", "r"},
	"81":   {"81", "Scala (2.13.2)", "scala"},
	"82":   {"82", "SQL (SQLite 3.27.2)", "sql"},
	"83":   {"83", "Swift (5.2.3)", "swift"},
	"84":   {"84", "Visual Basic.Net (vbnc 0.0.0.5943)", "vb"},
	"85":   {"85", "Perl (5.28.1)", "perl"},
	"86":   {"86", "Clojure (1.10.1)", "clojure"},
	"87":   {"87", "F# (.NET Core SDK 3.1.202)", "fsharp"},
	"88":   {"88", "Groovy (3.0.3)", "groovy"},
	"1001": {"1001", "C (Clang 10.0.1)", "c"},
	"1002": {"1002", "C++ (Clang 10.0.1)", "cpp"},
	"1004": {"1004", "Java (OpenJDK 14.0.1)", "java"},
	"1005": {"1005", "Java Test (OpenJDK 14.0.1, JUnit Platform Console Standalone 1.6.2)", "java"},
	"1006": {"1006", "MPI (OpenRTE 3.1.3) with C (GCC 8.3.0)", "c"},
	"1007": {"1007", "MPI (OpenRTE 3.1.3) with C++ (GCC 8.3.0)", "cpp"},
	"1008": {"1008", "MPI (OpenRTE 3.1.3) with Python (3.7.3)", "python"},
	"1009": {"1009", "Nim (stable)", "nim"},
	"1010": {"1010", "Python for ML (3.7.3)", "python"},
	"1011": {"1011", "Bosque (latest)", "bosque"},
	"1013": {"1013", "C (Clang 9.0.1)", "c"},
	"1014": {"1014", "C++ (Clang 9.0.1)", "cpp"},
	"1021": {"1021", "C# (.NET Core SDK 3.1.302)", "csharp"},
	"1022": {"1022", "C# (Mono 6.10.0.104)", "csharp"},
	"1023": {"1023", "C# Test (.NET Core SDK 3.1.302, NUnit 3.12.0)", "csharp"},
	"1024": {"1024", "F# (.NET Core SDK 3.1.302)", "fsharp"},
}

// Lookup returns the catalog entry for id. Unknown identifiers map to the plain text mode.
func Lookup(id string) Language {
	if l, ok := catalog[id]; ok {
		return l
	}
	return Language{ID: id, DisplayName: "Unknown", EditorMode: PlainText}
}

// Mode returns the editor mode for id.
func Mode(id string) string {
	return Lookup(id).EditorMode
}

func Known(id string) bool {
	_, ok := catalog[id]
	return ok
}

// All returns every catalog entry ordered by display name.
func All() []Language {
	out := make([]Language, 0, len(catalog))
	for _, l := range catalog {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}
