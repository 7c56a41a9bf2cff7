// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package instrument

import (
	"go/ast"
	"go/token"
	"path"
	"strconv"
)

// resolveAlias returns the package name the hooks must be called through.
//
// If the file already imports the trace package, its existing name is
// used. Otherwise TracePackageAlias is used, unless that name is taken by
// another import or a top-level declaration, which is an error.
func resolveAlias(fset *token.FileSet, file *ast.File) (string, error) {
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}

		name := path.Base(p)
		if imp.Name != nil {
			name = imp.Name.Name
		}

		if p == TracePackageImportPath {
			if name == "_" || name == "." {
				return "", NewInstrumentationErrorWithSuggestion(fset, imp.Pos(),
					"trace package imported as "+name,
					"Import "+TracePackageImportPath+" with a regular name")
			}
			return name, nil
		}
		if name == TracePackageAlias {
			return "", NewInstrumentationErrorWithSuggestion(fset, imp.Pos(),
				"import "+strconv.Quote(p)+" uses the reserved name "+TracePackageAlias,
				"Rename the import so the tracer can use the name "+TracePackageAlias)
		}
	}

	if obj := file.Scope.Lookup(TracePackageAlias); obj != nil {
		return "", NewInstrumentationErrorWithSuggestion(fset, obj.Pos(),
			"top-level declaration uses the reserved name "+TracePackageAlias,
			"Rename the declaration so the tracer can use the name "+TracePackageAlias)
	}
	return TracePackageAlias, nil
}

// injectImport adds the trace package import under alias if it is missing.
//
// The import is appended to the first import declaration, or to a new
// grouped declaration at the top of the file.
func injectImport(file *ast.File, alias string) {
	for _, imp := range file.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil && p == TracePackageImportPath {
			return
		}
	}

	var importDecl *ast.GenDecl
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if ok && genDecl.Tok == token.IMPORT {
			importDecl = genDecl
			break
		}
	}

	if importDecl == nil {
		importDecl = &ast.GenDecl{
			Tok:    token.IMPORT,
			Lparen: 1, // Non-zero Lparen means grouped import: import (...)
		}
		file.Decls = append([]ast.Decl{importDecl}, file.Decls...)
	}

	spec := &ast.ImportSpec{
		Name: ast.NewIdent(alias),
		Path: &ast.BasicLit{
			Kind:  token.STRING,
			Value: strconv.Quote(TracePackageImportPath),
		},
	}
	importDecl.Specs = append(importDecl.Specs, spec)

	// A single ungrouped import becomes a group once a second spec is added.
	if importDecl.Lparen == 0 && len(importDecl.Specs) > 1 {
		importDecl.Lparen = 1
	}

	file.Imports = append(file.Imports, spec)
}
