// Package transform is the boundary to the engine that compiles and runs
// stylesheets. The template cache compiles through an Engine once per
// stylesheet; every render then takes a fresh Invocation from the resulting
// Factory.
package transform
