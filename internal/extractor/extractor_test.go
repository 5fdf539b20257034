package extractor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byName(elements []*CodeElement) map[string]*CodeElement {
	out := make(map[string]*CodeElement, len(elements))
	for _, el := range elements {
		out[el.Name] = el
	}
	return out
}

func TestExtractor_ExtractFromFile(t *testing.T) {
	testFile := filepath.Join("testdata", "payments.ts")

	ext, err := NewExtractor("typescript")
	require.NoError(t, err)

	elements, err := ext.ExtractFromFile(testFile)
	require.NoError(t, err)
	unitsByName := byName(elements)

	t.Run("Overall Count", func(t *testing.T) {
		assert.Len(t, elements, 6, "ChargeRequest, PaymentService, constructor, charge, refund, formatAmount")
	})

	t.Run("Class and methods", func(t *testing.T) {
		cls, ok := unitsByName["PaymentService"]
		require.True(t, ok)
		assert.Equal(t, UnitClass, cls.UnitType)
		assert.Equal(t, 9, cls.StartLine)

		charge, ok := unitsByName["charge"]
		require.True(t, ok)
		assert.Equal(t, UnitMethod, charge.UnitType)
		assert.Equal(t, "PaymentService", charge.Parent)
		assert.Equal(t, 16, charge.StartLine)
		assert.Equal(t, 24, charge.EndLine)
	})

	t.Run("Control flow is not a method", func(t *testing.T) {
		_, ok := unitsByName["if"]
		assert.False(t, ok)
	})

	t.Run("Top-level functions leave the class scope", func(t *testing.T) {
		refund := unitsByName["refund"]
		require.NotNil(t, refund)
		assert.Equal(t, UnitFunction, refund.UnitType)
		assert.Empty(t, refund.Parent)

		arrow := unitsByName["formatAmount"]
		require.NotNil(t, arrow)
		assert.Equal(t, UnitFunction, arrow.UnitType)
	})

	t.Run("Interface", func(t *testing.T) {
		assert.Equal(t, UnitInterface, unitsByName["ChargeRequest"].UnitType)
	})
}

func TestExtractElements_Languages(t *testing.T) {
	t.Run("Go", func(t *testing.T) {
		src := "package sample\n\ntype User struct {\n\tName string\n}\n\nfunc (u *User) Greet() string {\n\treturn u.Name\n}\n\nfunc New() *User { return &User{} }\n"
		got := byName(ExtractElements("sample.go", src))
		require.Len(t, got, 3)
		assert.Equal(t, UnitClass, got["User"].UnitType)
		assert.Equal(t, UnitMethod, got["Greet"].UnitType)
		assert.Equal(t, "User", got["Greet"].Parent)
		assert.Equal(t, UnitFunction, got["New"].UnitType)
	})

	t.Run("Python", func(t *testing.T) {
		src := "import boto3\n\nclass Uploader:\n    def __init__(self):\n        self.s3 = boto3.client('s3')\n\n    def upload(self, key):\n        pass\n\ndef main():\n    Uploader().upload('k')\n"
		got := byName(ExtractElements("app/upload.py", src))
		require.Len(t, got, 4)
		assert.Equal(t, "Uploader", got["upload"].Parent)
		assert.Equal(t, UnitMethod, got["upload"].UnitType)
		assert.Equal(t, UnitFunction, got["main"].UnitType)
		assert.Empty(t, got["main"].Parent)
	})

	t.Run("Rust", func(t *testing.T) {
		src := "pub struct Client {}\n\nimpl Client {\n    pub async fn send(&self) {}\n}\n\nfn main() {}\n"
		got := byName(ExtractElements("src/main.rs", src))
		require.Len(t, got, 3)
		assert.Equal(t, "Client", got["send"].Parent)
		assert.Equal(t, UnitFunction, got["main"].UnitType)
	})

	t.Run("Java", func(t *testing.T) {
		src := "public class Mailer {\n    private String host;\n\n    public void send(String to) {\n        String body = render(to);\n        if (body != null) {\n        }\n    }\n}\n"
		got := byName(ExtractElements("Mailer.java", src))
		require.Len(t, got, 2)
		assert.Equal(t, UnitMethod, got["send"].UnitType)
		assert.Equal(t, "Mailer", got["send"].Parent)
	})

	t.Run("Unsupported", func(t *testing.T) {
		assert.Empty(t, ExtractElements("README.md", "# function foo()"))
		_, err := NewExtractor("cobol")
		assert.Error(t, err)
	})
}

func TestBuildStableElementID(t *testing.T) {
	src := "export function pay(amount) {\n  return amount;\n}\n"
	shifted := "\n\n// leading comment\n" + src

	a := ExtractElements("src/pay.js", src)
	b := ExtractElements("src/pay.js", shifted)
	require.Len(t, a, 1)
	require.Len(t, b, 1)

	assert.Equal(t, a[0].ID, b[0].ID, "line shifts must not change the id")
	assert.NotEqual(t, a[0].StartLine, b[0].StartLine)
	assert.Contains(t, a[0].ID, "javascript/src/pay.js:function:pay:")

	other := ExtractElements("src/other.js", src)
	assert.NotEqual(t, a[0].ID, other[0].ID)
	assert.Empty(t, BuildStableElementID(nil))
}
