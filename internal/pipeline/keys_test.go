package pipeline

import (
	"testing"

	"github.com/adamihamza/lambda-ci/internal/builder"
)

func TestKeyLayout(t *testing.T) {
	k := NewKeys("demo-fn", "requirements.txt")

	if got := k.Descriptor(); got != "lambda-ci/demo-fn/latest/requirements.txt" {
		t.Fatalf("Descriptor() = %q", got)
	}
	if got := k.Latest(builder.KindCode); got != "lambda-ci/demo-fn/latest/app.zip" {
		t.Fatalf("Latest(code) = %q", got)
	}
	if got := k.Latest(builder.KindDependencies); got != "lambda-ci/demo-fn/latest/deps.zip" {
		t.Fatalf("Latest(deps) = %q", got)
	}
	if got := k.Revision("ABC123", builder.KindCode); got != "lambda-ci/demo-fn/ABC123/app.zip" {
		t.Fatalf("Revision(code) = %q", got)
	}
	if got := k.Revision("ABC123", builder.KindDependencies); got != "lambda-ci/demo-fn/ABC123/deps.zip" {
		t.Fatalf("Revision(deps) = %q", got)
	}
}
