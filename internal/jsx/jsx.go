// Package jsx compiles report render code from JSX to plain JavaScript.
package jsx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Transform rewrites JSX elements into React.createElement calls. The browser evaluates
// the result with new Function, so it must not contain JSX or module syntax.
func Transform(source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:      api.LoaderJSX,
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		Target:      api.ES2020,
		Charset:     api.CharsetUTF8,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			if m.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s (line %d)", m.Text, m.Location.Line))
				continue
			}
			msgs = append(msgs, m.Text)
		}
		return "", errors.New("jsx transform: " + strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}

// TransformOrKeep is Transform that hands back the original source alongside the error.
func TransformOrKeep(source string) (string, error) {
	out, err := Transform(source)
	if err != nil {
		return source, err
	}
	return out, nil
}
