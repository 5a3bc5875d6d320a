package jsx

import (
	"strings"
	"testing"
)

func TestTransform(t *testing.T) {
	src := `function ReportComponent({ data, metadata }) {
  return (
    <div className="report">
      <h2>{metadata.title}</h2>
      <>{data.length}</>
    </div>
  );
}`
	out, err := Transform(src)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if !strings.Contains(out, "React.createElement(") {
		t.Fatalf("expected React.createElement calls:\n%s", out)
	}
	if !strings.Contains(out, "React.Fragment") {
		t.Fatalf("expected React.Fragment:\n%s", out)
	}
	if strings.Contains(out, "<div") {
		t.Fatalf("JSX left in output:\n%s", out)
	}
	if !strings.Contains(out, "function ReportComponent") {
		t.Fatalf("component declaration lost:\n%s", out)
	}
}

func TestTransform_PlainJavaScriptUnchangedInMeaning(t *testing.T) {
	out, err := Transform("function ReportComponent(props) { return React.createElement('div', null, props.data.length); }")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if !strings.Contains(out, "props.data.length") {
		t.Fatalf("output = %s", out)
	}
}

func TestTransformOrKeep_InvalidSource(t *testing.T) {
	src := "function ReportComponent( { return <div>; }"
	out, err := TransformOrKeep(src)
	if err == nil {
		t.Fatalf("expected error")
	}
	if out != src {
		t.Fatalf("expected original source back, got %q", out)
	}
	if !strings.Contains(err.Error(), "line") {
		t.Fatalf("error should carry a location: %v", err)
	}
}
