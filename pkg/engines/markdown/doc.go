/*
Package markdown adapts the goldmark Markdown converter to the stagehand
renderer contract. Markdown is a pure content transformation without
variable binding sites, so registered globals and functions are accepted
but have no effect on the output.
*/
package markdown
