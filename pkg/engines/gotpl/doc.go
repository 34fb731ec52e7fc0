/*
Package gotpl adapts Go's text/template and html/template packages to the
stagehand renderer contract. The HTML variant applies contextual
auto-escaping; globals registered with escape=false are injected as
template.HTML so the engine leaves them untouched.
*/
package gotpl
