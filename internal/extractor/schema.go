package extractor

// CodeElement is a function, method, class or interface found in a source file.
type CodeElement struct {
	ID        string `json:"id"`        // Stable identifier, see BuildStableElementID
	Filepath  string `json:"filepath"`  // Path relative to the repository root
	Language  string `json:"language"`  // Programming language
	StartLine int    `json:"start_line"` // 1-based line of the declaration
	EndLine   int    `json:"end_line"`  // Line before the next declaration, or the last line
	UnitType  string `json:"unit_type"` // "function", "method", "class" or "interface"
	Name      string `json:"name"`
	Parent    string `json:"parent,omitempty"` // Enclosing class or receiver type for methods
	Signature string `json:"signature"`        // Declaration line with whitespace collapsed
}

const (
	UnitFunction  = "function"
	UnitMethod    = "method"
	UnitClass     = "class"
	UnitInterface = "interface"
)

// QualifiedName returns Parent.Name for methods and Name otherwise.
func (e *CodeElement) QualifiedName() string {
	if e.Parent != "" {
		return e.Parent + "." + e.Name
	}
	return e.Name
}
