package sandbox

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// moduleGlobal is the name esbuild binds the module namespace to. It is a
// local of the loader function, never a real global.
const moduleGlobal = "__edgefn_module"

// CompileModule converts user source (ES module or CommonJS) into a script
// that binds its exports to moduleGlobal. Syntax errors are returned with
// their source position.
func CompileModule(source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Format:     api.FormatIIFE,
		GlobalName: moduleGlobal,
		Target:     api.ESNext,
		Sourcefile: "function.js",
		Loader:     api.LoaderJS,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("compiling function: %s", formatMessages(result.Errors))
	}
	return string(result.Code), nil
}

func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
		} else {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "; ")
}

// moduleScript wraps compiled code in a loader function. The function's
// parameters shadow the CommonJS free variables so that both module styles
// resolve to objects the runner can inspect, and bind env in the module
// scope.
func moduleScript(compiled string) string {
	var b strings.Builder
	b.Grow(len(compiled) + 256)
	b.WriteString("__edgefn.load(function (module, exports, require, env) {\n")
	b.WriteString(compiled)
	b.WriteString("\nreturn typeof ")
	b.WriteString(moduleGlobal)
	b.WriteString(" === 'undefined' ? undefined : ")
	b.WriteString(moduleGlobal)
	b.WriteString(";\n});")
	return b.String()
}
