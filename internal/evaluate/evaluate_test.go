package evaluate

import (
	"testing"

	"github.com/starford/raido/internal/parser"
)

func mustEvaluate(t *testing.T, src string) *Result {
	t.Helper()
	doc, err := parser.Parse("app.proj", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return Evaluate(doc.Path(), doc.Snapshot())
}

func TestEvaluate_PropertiesExpand(t *testing.T) {
	r := mustEvaluate(t, `<project>
  <properties>
    <Name>app</Name>
    <Out>bin/$(Name)</Out>
  </properties>
  <PropertyGroup>
    <Name>tool</Name>
    <Final>$(Out)-$(Name)-$(Missing)</Final>
  </PropertyGroup>
</project>`)

	if v, _ := r.Property("Name"); v != "tool" {
		t.Errorf("Name = %q, want tool (later definition wins)", v)
	}
	if v, _ := r.Property("Out"); v != "bin/app" {
		t.Errorf("Out = %q, want bin/app", v)
	}
	if v, _ := r.Property("Final"); v != "bin/app-tool-" {
		t.Errorf("Final = %q", v)
	}
	if len(r.Properties) != 3 {
		t.Errorf("properties = %+v", r.Properties)
	}
}

func TestEvaluate_SelfReferenceTerminates(t *testing.T) {
	r := mustEvaluate(t, `<project><properties><P>x</P><P>$(P);y</P></properties></project>`)
	if v, _ := r.Property("P"); v != "x;y" {
		t.Errorf("P = %q, want x;y", v)
	}
}

func TestEvaluate_Items(t *testing.T) {
	r := mustEvaluate(t, `<project>
  <items>
    <Compile include="$(Src)/main.go" Link="yes" />
    <Compile />
  </items>
  <properties><Src>cmd</Src></properties>
  <ItemGroup>
    <Content Include="README.md" />
  </ItemGroup>
</project>`)

	compile := r.ItemsOf("Compile")
	if len(compile) != 1 {
		t.Fatalf("compile items = %+v", compile)
	}
	if compile[0].Include != "cmd/main.go" {
		t.Errorf("include = %q, want cmd/main.go", compile[0].Include)
	}
	if compile[0].Metadata["Link"] != "yes" {
		t.Errorf("metadata = %v", compile[0].Metadata)
	}
	if len(r.ItemsOf("Content")) != 1 {
		t.Errorf("content items = %+v", r.ItemsOf("Content"))
	}
	if len(r.Warnings) != 1 {
		t.Errorf("warnings = %v, want one for missing include", r.Warnings)
	}
}

func TestEvaluate_NilRoot(t *testing.T) {
	r := Evaluate("x.proj", nil)
	if r.Properties == nil || r.Items == nil {
		t.Error("empty result should have non-nil slices")
	}
}
