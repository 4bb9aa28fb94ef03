package refactor

import (
	"testing"

	"github.com/mamaar/polyrefactor/pkg/lang"
)

func TestSuggestName(t *testing.T) {
	py, js, goDialect := lang.ByName("python"), lang.ByName("javascript"), lang.ByName("go")
	tests := []struct {
		name string
		d    *lang.Dialect
		expr string
		want string
	}{
		{"string literal", py, `"hello"`, "text"},
		{"number", js, "42", "number"},
		{"boolean", py, "True", "flag"},
		{"sum", py, "a + b", "sum"},
		{"wrapped product", js, "(a * b)", "product"},
		{"getter call js", js, "user.getName()", "name"},
		{"getter call python", py, "user.get_name()", "name"},
		{"plain call", py, "compute_total(x)", "compute_total_result"},
		{"member", js, "order.shippingAddress", "shippingAddress"},
		{"go member", goDialect, "cfg.MaxSize", "maxSize"},
		{"fallback", py, "[1, 2]", "value"},
		{"keyword result", js, "x.new", "value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuggestName(tt.d, tt.expr); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestUniqueName(t *testing.T) {
	taken := identifierSet([]byte("value value2 other"))
	if got := uniqueName("value", taken); got != "value3" {
		t.Errorf("Expected value3, got %s", got)
	}
	if got := uniqueName("fresh", taken); got != "fresh" {
		t.Errorf("Expected fresh, got %s", got)
	}
}
